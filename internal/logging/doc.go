// Package logging provides structured logging for evolve.
//
// Logs are JSON lines written through log/slog to
// {state_dir}/logs/evolve.log. Every evolution cycle gets a child logger
// tagged with its run ID, line and generation, and each stage adds its own
// stage attribute, so a single cycle can be reconstructed with a grep for
// its run_id.
//
// # Thread Safety
//
// [Logger] and [RotatingWriter] are safe for concurrent use. Child loggers
// created with the With* methods share the parent's writer.
//
// # Basic Usage
//
//	logger, err := logging.NewLogger(filepath.Join(stateDir, "logs"), "INFO",
//	    logging.DefaultRotationConfig())
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	cycle := logger.WithRun(runID).WithLine("alpha").WithGeneration(3)
//	cycle.WithStage("critique").Info("critique received", "overall", 7)
//
// # Rotation
//
// The log file is rotated once it would exceed MaxSizeMB. Up to MaxBackups
// previous files are kept as evolve.log.1 (newest) to evolve.log.N and are
// gzipped when Compress is set.
//
// Use [NopLogger] where a logger is required but output is not wanted,
// typically in tests.
package logging
