// Package logging provides structured logging for tuyalocal.
//
// This package wraps a zap logger with convenience functions used by the
// transport, the dispatcher and the device simulator. The library is silent by
// default: nothing is written until Initialize is called or the host application
// installs its own logger with SetLogger.
//
// # Log Levels
//
//   - Debug: frame hex dumps, command state transitions, retry delays
//   - Info: simulator connections, device state changes
//   - Warn: failed connect attempts, rejected frames
//   - Error: exhausted retries, socket failures
//
// # Structured Logging
//
//	logging.Info("Device state changed",
//	    zap.String("device_id", "bf1234"),
//	    zap.Any("dps", dps),
//	)
//
// # Frame Logging
//
//	logging.LogFrame(logger, "[kitchen]", deviceID, "sent", frame)
//
// This emits length, hex and ascii fields at debug level.
//
// # Configuration
//
//	if err := logging.InitializeWithConfig(logging.Config{
//	    Level: "debug",
//	    File:  &logging.FileConfig{Filename: "/var/log/tuyalocal.log", MaxSizeMB: 10},
//	}); err != nil {
//	    log.Fatal(err)
//	}
//	defer logging.Sync()
//
// File output rotates with lumberjack. An empty level falls back to the
// TUYALOCAL_LOG_LEVEL environment variable, then to silent mode.
//
// # Thread Safety
//
// All logging functions are safe for concurrent use.
package logging
