// Package voltship provides an embeddable acquisition pipeline for a
// microcontroller that streams ADC readings over a USB serial port.
//
// Each newline-terminated integer received from the device is converted to
// a voltage and appended to a durable text log, one value per line. The log
// can be exported to an Excel workbook. A stop request never loses data: the
// bytes already received are read once more and everything queued is written
// before the pipeline reports it has stopped.
//
// # Basic Usage
//
//	cfg := voltship.DefaultConfig()
//	cfg.LogPath = "voltage_data.txt"
//
//	v, err := voltship.New(cfg, voltship.WithObserver(feed))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer v.Shutdown(context.Background())
//
//	if err := v.Connect(ctx, ""); err != nil { // "" discovers the port
//	    log.Fatal(err)
//	}
//	if err := v.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	// ... later ...
//	if err := v.Stop(ctx); err != nil {
//	    log.Printf("stop: %v", err)
//	}
//	_, err = v.Export(ctx, "voltages.xlsx", false)
//
// # States
//
// An instance starts in [StateIdle]. Start moves to [StateRunning]; Stop
// passes through [StateStopping] to [StateStopped]. A transport or
// persistence fault moves to [StateError], from which only a new Connect
// recovers. Clear, Export, and Connect are refused with [ErrBusy] while
// Running or Stopping.
//
// # Events
//
// Everything a display would show (sample values, decode failures, progress
// notices, state changes) is delivered to the [Observer] as an [Event].
// Notify is called from worker goroutines; a [Feed] buffers events for a
// foreground loop and coalesces samples when the display falls behind.
//
// # Calibration
//
// Raw values are converted as raw*VRef/Resolution - Offset. The defaults
// (4.0, 4095, 2.0) map the 12-bit range onto -2 V to +2 V. Calibration is
// fixed for the lifetime of a connection; [Voltship.SetCalibration] takes
// effect at the next Connect.
package voltship
