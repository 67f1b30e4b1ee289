package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/bft-labs/voltship/pkg/voltship"
)

func TestReportError(t *testing.T) {
	var buf bytes.Buffer
	reportError(&buf, errors.New("serial port busy"))

	out := buf.String()
	if !strings.Contains(out, "serial port busy") {
		t.Errorf("output %q does not contain the error", out)
	}
	if !strings.Contains(out, "voltship") {
		t.Errorf("output %q does not name the command", out)
	}
}

func TestReportError_WrappedSentinel(t *testing.T) {
	var buf bytes.Buffer
	reportError(&buf, errors.Join(voltship.ErrNotConnected, errors.New("no device on /dev/ttyACM0")))

	if !strings.Contains(buf.String(), "/dev/ttyACM0") {
		t.Errorf("output %q lost the wrapped detail", buf.String())
	}
}
