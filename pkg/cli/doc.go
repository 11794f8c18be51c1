/*
Package cli provides command-line helpers for the chatello command.

Output Formatting:

Commands that print results accept --output text|json|csv. Results that
render as rows implement Table:

	format, err := cli.ParseFormat(flag)
	if err != nil {
		return err
	}
	return cli.NewFormatter(format).FormatTo(os.Stdout, plans)

Progress Reporting:

	progress := cli.NewProgressReporter(os.Stdout, "Backfilling")
	progress.Start(int64(days))
	for i := range days {
		// Do work
		progress.Update(int64(i + 1))
	}
	progress.Finish()

Signal Handling:

	ctx, stop := cli.SetupSignalHandler(context.Background())
	defer stop()

Errors:

ConfigError and CommandError carry the exit code chosen by ExitCode.
*/
package cli
