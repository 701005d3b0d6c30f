package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"facemark/internal/app"
	"facemark/internal/archive"
	"facemark/internal/attend"
	"facemark/internal/config"
	"facemark/internal/export"
	"facemark/internal/ledger"
	"facemark/internal/model"
	"facemark/internal/web"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates an App. The caller must defer app.Close().
// operation identifies the CLI command being run (e.g. "Scan", "Serve").
func newApp(operation string) (*app.App, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	a, err := app.New(cfg, operation)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

// readPassphrase prompts on stderr and reads without echo.
func readPassphrase(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	pw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return string(pw), nil
}

var rootCmd = &cobra.Command{
	Use:   "facemark",
	Short: "Face recognition attendance station",
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(defaults["base_dir"])

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Data Dir: %s\n", cfg.DataDir)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Data Dir:   %s\n", cfg.DataDir)
		fmt.Printf("Log Dir:    %s\n", cfg.LogDir)
		fmt.Printf("Ledger:     %s\n", cfg.Ledger.Type)
		fmt.Printf("Journal:    %s\n", cfg.Journal.Path)
		fmt.Printf("Classifier: %s (%s)\n", cfg.Classifier.Type, cfg.Classifier.URL)
		fmt.Printf("Camera:     %s\n", cfg.Camera.Type)
		fmt.Printf("Archive:    %s\n", cfg.Archive.Type)
		fmt.Printf("Serve:      %s\n", cfg.Serve.Addr)
		return nil
	},
}

// student command
var studentCmd = &cobra.Command{
	Use:   "student",
	Short: "Manage the student registry",
}

var studentAddCmd = &cobra.Command{
	Use:   "add ID NAME",
	Short: "Register a student",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("StudentAdd")
		if err != nil {
			return err
		}
		defer a.Close()

		student, err := a.Service().RegisterStudent(args[0], args[1])
		if err != nil {
			return fmt.Errorf("registering student: %w", err)
		}

		fmt.Printf("Registered student %s (%s)\n", student.ID, student.Name)
		return nil
	},
}

var studentListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered students",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("StudentList")
		if err != nil {
			return err
		}
		defer a.Close()

		students, err := a.Service().Students()
		if err != nil {
			return err
		}

		if len(students) == 0 {
			fmt.Println("No students registered.")
			return nil
		}

		for _, s := range students {
			fmt.Printf("%-8s %-24s %s\n", s.ID, s.Name, s.RegisteredAt.Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}

// mark command
var markCmd = &cobra.Command{
	Use:   "mark ID",
	Short: "Mark a student present",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		subject, _ := cmd.Flags().GetString("subject")
		atRaw, _ := cmd.Flags().GetString("at")

		at := time.Now()
		if atRaw != "" {
			parsed, err := time.Parse(time.RFC3339, atRaw)
			if err != nil {
				return fmt.Errorf("parsing --at (want RFC3339): %w", err)
			}
			at = parsed
		}

		a, err := newApp("MarkPresent")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Service().MarkPresent(args[0], subject, at); err != nil {
			return fmt.Errorf("marking present: %w", err)
		}

		fmt.Printf("Marked %s present in %s on %s\n", args[0], subject, model.Day(at))
		return nil
	},
}

// import command
var importCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Import marks from a student ID list",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		subject, _ := cmd.Flags().GetString("subject")

		a, err := newApp("ImportMarks")
		if err != nil {
			return err
		}
		defer a.Close()

		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("opening import file: %w", err)
		}
		defer f.Close()

		count, err := a.Service().ImportMarks(f, subject)
		if err != nil {
			return fmt.Errorf("importing: %w", err)
		}

		fmt.Printf("Imported %d mark(s) into %s\n", count, subject)
		return nil
	},
}

// scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run a recognition session against the camera",
	RunE: func(cmd *cobra.Command, args []string) error {
		subject, _ := cmd.Flags().GetString("subject")

		a, err := newApp("Scan")
		if err != nil {
			return err
		}
		defer a.Close()

		svc := a.Service()
		if subject != "" {
			if err := svc.SelectSubject(subject); err != nil {
				return fmt.Errorf("selecting subject: %w", err)
			}
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		frames, unsubscribe := svc.Subscribe()
		defer unsubscribe()

		if err := svc.StartSession(ctx); err != nil {
			return fmt.Errorf("starting session: %w", err)
		}
		fmt.Printf("Scanning in %s mode. Press Ctrl-C to stop.\n", svc.Mode())

		// The session runs detached; watch for Ctrl-C or its own death.
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()

	loop:
		for {
			select {
			case <-ctx.Done():
				break loop
			case res, ok := <-frames:
				if !ok {
					break loop
				}
				printOutcomes(res)
			case <-ticker.C:
				if !svc.Running() {
					break loop
				}
			}
		}

		if err := svc.StopSession(); err != nil {
			return fmt.Errorf("session ended: %w", err)
		}
		fmt.Println("Session stopped.")
		return nil
	},
}

// printOutcomes reports marks and alerts; detections and dedup hits stay
// quiet so a 5 fps stream does not flood the terminal.
func printOutcomes(res attend.FrameResult) {
	for _, out := range res.Outcomes {
		switch {
		case out.Marked:
			fmt.Printf("present: %s (%s) distance=%.1f\n", out.Name, out.StudentID, out.Confidence)
		case out.AlertFired:
			fmt.Printf("ALERT: unrecognized face, evidence saved (alert %s)\n", out.AlertID)
		}
	}
}

// serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API and live feed",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("Serve")
		if err != nil {
			return err
		}
		defer a.Close()

		srv := web.NewServer(web.ServerParams{
			Service:  a.Service(),
			Sessions: a.Journal(),
			Config:   a.Config().Serve,
			Gatherer: a.Gatherer(),
			Logger:   a.Logger(),
		})

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		errCh := make(chan error, 1)
		go func() { errCh <- srv.Start() }()
		fmt.Printf("Serving on http://%s (Ctrl-C to stop)\n", a.Config().Serve.Addr)

		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("shutting down: %w", err)
			}
			return <-errCh
		case err := <-errCh:
			return err
		}
	},
}

// attendance command
var attendanceCmd = &cobra.Command{
	Use:   "attendance",
	Short: "View one day of attendance",
	RunE: func(cmd *cobra.Command, args []string) error {
		subject, _ := cmd.Flags().GetString("subject")
		day, _ := cmd.Flags().GetString("day")
		if day == "" {
			day = model.Day(time.Now())
		}

		a, err := newApp("Attendance")
		if err != nil {
			return err
		}
		defer a.Close()

		recs, err := a.Service().Attendance(subject, day)
		if err != nil {
			return err
		}

		if len(recs) == 0 {
			fmt.Printf("No attendance recorded for %s on %s.\n", subject, day)
			return nil
		}

		for _, r := range recs {
			fmt.Printf("%-8s %-24s %s  %s\n", r.StudentID, r.Name, r.At.Format("15:04:05"), r.Status)
		}
		return nil
	},
}

// summary command
var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Summarize attendance over a day range",
	RunE: func(cmd *cobra.Command, args []string) error {
		subject, _ := cmd.Flags().GetString("subject")
		from, _ := cmd.Flags().GetString("from")
		to, _ := cmd.Flags().GetString("to")

		a, err := newApp("Summary")
		if err != nil {
			return err
		}
		defer a.Close()

		sum, err := a.Service().Summary(subject, from, to)
		if err != nil {
			return err
		}

		fmt.Printf("Attendance for %s, %s to %s (%d days):\n\n", sum.Subject, sum.From, sum.To, len(sum.Days))
		for _, row := range sum.Rows {
			present := 0
			for _, status := range row.Marks {
				if status == model.StatusPresent {
					present++
				}
			}
			fmt.Printf("%-8s %-24s %d/%d present\n", row.StudentID, row.Name, present, len(sum.Days))
		}
		return nil
	},
}

// report command
var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Export an attendance summary",
	RunE: func(cmd *cobra.Command, args []string) error {
		subject, _ := cmd.Flags().GetString("subject")
		from, _ := cmd.Flags().GetString("from")
		to, _ := cmd.Flags().GetString("to")
		format, _ := cmd.Flags().GetString("format")
		output, _ := cmd.Flags().GetString("output")

		a, err := newApp("Report")
		if err != nil {
			return err
		}
		defer a.Close()

		sum, err := a.Service().Summary(subject, from, to)
		if err != nil {
			return err
		}

		switch format {
		case "csv", "json":
			w := os.Stdout
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("creating output file: %w", err)
				}
				defer f.Close()
				w = f
			}
			if format == "csv" {
				err = export.WriteSummaryCSV(w, *sum)
			} else {
				err = export.WriteSummaryJSON(w, *sum)
			}
			if err != nil {
				return fmt.Errorf("writing report: %w", err)
			}
		case "xlsx", "pdf":
			if output == "" {
				return fmt.Errorf("--output is required for %s reports", format)
			}
			var data []byte
			if format == "xlsx" {
				data, err = export.BuildSummaryXLSX(*sum)
			} else {
				data, err = export.BuildSummaryPDF(*sum)
			}
			if err != nil {
				return fmt.Errorf("building report: %w", err)
			}
			if err := os.WriteFile(output, data, 0644); err != nil {
				return fmt.Errorf("writing report: %w", err)
			}
		default:
			return fmt.Errorf("unknown report format %q (want csv, json, xlsx or pdf)", format)
		}

		if output != "" {
			fmt.Printf("Wrote %s report to %s\n", format, output)
		}
		return nil
	},
}

// alerts command
var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Manage unknown-face alerts",
}

var alertsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent alerts",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp("AlertsList")
		if err != nil {
			return err
		}
		defer a.Close()

		alerts, err := a.Service().RecentAlerts(limit)
		if err != nil {
			return err
		}

		if len(alerts) == 0 {
			fmt.Println("No alerts recorded.")
			return nil
		}

		for _, al := range alerts {
			fmt.Printf("%-12s %s  %s\n", al.ID, al.TriggeredAt.Format("2006-01-02 15:04:05"), al.EvidenceRef)
		}
		return nil
	},
}

var alertsResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear the active alert",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("AlertsReset")
		if err != nil {
			return err
		}
		defer a.Close()

		a.Service().ResetAlert()
		fmt.Println("Alert state cleared.")
		return nil
	},
}

// events command
var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "View recent recognition events",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		sessionID, _ := cmd.Flags().GetString("session")

		a, err := newApp("Events")
		if err != nil {
			return err
		}
		defer a.Close()

		var events []model.RecognitionEvent
		if sessionID != "" {
			events, err = a.Service().SessionEvents(sessionID)
		} else {
			events, err = a.Service().RecentEvents(limit)
		}
		if err != nil {
			return err
		}

		if len(events) == 0 {
			fmt.Println("No events recorded.")
			return nil
		}

		for _, e := range events {
			who := e.Name
			if who == "" {
				who = "-"
			}
			fmt.Printf("%s  %-10s %-8s %-24s %.1f\n",
				e.At.Format("2006-01-02 15:04:05"), e.Status, e.StudentID, who, e.Confidence)
		}
		return nil
	},
}

// evidence command
var evidenceCmd = &cobra.Command{
	Use:   "evidence",
	Short: "Manage encrypted alert evidence",
}

var evidenceInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate the evidence key pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("EvidenceInit")
		if err != nil {
			return err
		}
		defer a.Close()

		if a.Encryptor().IsConfigured() {
			return fmt.Errorf("evidence keys already exist, refusing to overwrite")
		}

		pass, err := readPassphrase("Passphrase: ")
		if err != nil {
			return err
		}
		confirm, err := readPassphrase("Confirm passphrase: ")
		if err != nil {
			return err
		}
		if pass != confirm {
			return fmt.Errorf("passphrases do not match")
		}

		if err := a.Encryptor().Setup(pass); err != nil {
			return fmt.Errorf("generating keys: %w", err)
		}

		fmt.Printf("Evidence keys written:\n  %s\n  %s\n",
			a.Config().Evidence.PublicKeyPath, a.Config().Evidence.PrivateKeyPath)
		return nil
	},
}

var evidenceOpenCmd = &cobra.Command{
	Use:   "open REF",
	Short: "Decrypt an evidence snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ref := args[0]
		output, _ := cmd.Flags().GetString("output")
		if output == "" {
			output = strings.TrimSuffix(ref, ".age")
		}

		a, err := newApp("EvidenceOpen")
		if err != nil {
			return err
		}
		defer a.Close()

		src, err := a.Evidence().Open(ref)
		if err != nil {
			return err
		}
		defer src.Close()

		dst, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		defer dst.Close()

		// The saved name tells whether the snapshot is sealed.
		if strings.HasSuffix(ref, ".age") {
			pass, err := readPassphrase("Passphrase: ")
			if err != nil {
				return err
			}
			dc, err := a.Encryptor().Unlock(pass)
			if err != nil {
				return fmt.Errorf("unlocking evidence key: %w", err)
			}
			if err := dc.Decrypt(src, dst); err != nil {
				return fmt.Errorf("decrypting evidence: %w", err)
			}
		} else {
			if _, err := io.Copy(dst, src); err != nil {
				return fmt.Errorf("copying evidence: %w", err)
			}
		}

		fmt.Printf("Wrote %s\n", output)
		return nil
	},
}

// archive command
var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Manage the offsite archive",
}

var archivePushCmd = &cobra.Command{
	Use:   "push",
	Short: "Push the registry, attendance and evidence to the archive",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("ArchivePush")
		if err != nil {
			return err
		}
		defer a.Close()

		arch, err := a.Archiver()
		if err != nil {
			return err
		}
		if err := arch.ValidateSetup(); err != nil {
			return fmt.Errorf("archive backend not reachable: %w", err)
		}

		cfg := a.Config()
		stats, err := archive.Push(arch,
			ledger.StudentsPath(cfg.DataDir),
			ledger.AttendancePath(cfg.DataDir),
			cfg.Evidence.Dir,
			a.Logger(),
		)
		if err != nil {
			return fmt.Errorf("push failed after %d file(s): %w", stats.Files, err)
		}

		fmt.Printf("Archived %d file(s), %d bytes\n", stats.Files, stats.Bytes)
		return nil
	},
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	// student subcommands
	studentCmd.AddCommand(studentAddCmd)
	studentCmd.AddCommand(studentListCmd)

	// alerts subcommands
	alertsCmd.AddCommand(alertsListCmd)
	alertsCmd.AddCommand(alertsResetCmd)
	alertsListCmd.Flags().IntP("limit", "n", 20, "Maximum number of alerts to show")

	// evidence subcommands
	evidenceCmd.AddCommand(evidenceInitCmd)
	evidenceCmd.AddCommand(evidenceOpenCmd)
	evidenceOpenCmd.Flags().StringP("output", "o", "", "Output file (default: reference without .age)")

	// archive subcommands
	archiveCmd.AddCommand(archivePushCmd)

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(studentCmd)

	rootCmd.AddCommand(markCmd)
	markCmd.Flags().StringP("subject", "s", "", "Subject to mark in")
	markCmd.Flags().String("at", "", "Mark time (RFC3339, default now)")
	markCmd.MarkFlagRequired("subject")

	rootCmd.AddCommand(importCmd)
	importCmd.Flags().StringP("subject", "s", "", "Subject to import into")
	importCmd.MarkFlagRequired("subject")

	rootCmd.AddCommand(scanCmd)
	scanCmd.Flags().StringP("subject", "s", "", "Subject to mark during the scan")

	rootCmd.AddCommand(serveCmd)

	rootCmd.AddCommand(attendanceCmd)
	attendanceCmd.Flags().StringP("subject", "s", "", "Subject to view")
	attendanceCmd.Flags().StringP("day", "d", "", "Day to view (YYYY-MM-DD, default today)")
	attendanceCmd.MarkFlagRequired("subject")

	rootCmd.AddCommand(summaryCmd)
	summaryCmd.Flags().StringP("subject", "s", "", "Subject to summarize")
	summaryCmd.Flags().String("from", "", "First day (YYYY-MM-DD)")
	summaryCmd.Flags().String("to", "", "Last day (YYYY-MM-DD)")
	summaryCmd.MarkFlagRequired("subject")
	summaryCmd.MarkFlagRequired("from")
	summaryCmd.MarkFlagRequired("to")

	rootCmd.AddCommand(reportCmd)
	reportCmd.Flags().StringP("subject", "s", "", "Subject to report on")
	reportCmd.Flags().String("from", "", "First day (YYYY-MM-DD)")
	reportCmd.Flags().String("to", "", "Last day (YYYY-MM-DD)")
	reportCmd.Flags().StringP("format", "f", "csv", "Report format: csv, json, xlsx or pdf")
	reportCmd.Flags().StringP("output", "o", "", "Output file (default: stdout for csv and json)")
	reportCmd.MarkFlagRequired("subject")
	reportCmd.MarkFlagRequired("from")
	reportCmd.MarkFlagRequired("to")

	rootCmd.AddCommand(alertsCmd)

	rootCmd.AddCommand(eventsCmd)
	eventsCmd.Flags().IntP("limit", "n", 50, "Maximum number of events to show")
	eventsCmd.Flags().String("session", "", "Show events for one session ID")

	rootCmd.AddCommand(evidenceCmd)
	rootCmd.AddCommand(archiveCmd)
}
