// Command mhtml2pdf converts a saved document viewer page (.mhtml) into a
// PDF with one page per viewer page.
//
//	mhtml2pdf -y -m input.mhtml -o /path/to/output.pdf
//	mhtml2pdf -y -m input.mhtml -d /path/to/
//	mhtml2pdf -y -m input.mhtml -d /path/to/ -n output.pdf
//	mhtml2pdf --inspect -m input.mhtml
//	mhtml2pdf --mcp
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/alexflint/go-arg"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/schollz/progressbar/v3"

	"github.com/hazyhaar/mhtml2pdf/docpipe"
	"github.com/hazyhaar/mhtml2pdf/policy"
)

const version = "0.3.0"

type args struct {
	MHTML       string `arg:"-m,--mhtml" help:"path to the input MHTML file"`
	OutputFile  string `arg:"-o,--output-file" help:"PDF file to write"`
	OutputDir   string `arg:"-d,--output-dir" help:"directory the PDF is written to"`
	Filename    string `arg:"-n,--filename" help:"PDF file name, used with --output-dir"`
	Interactive bool   `arg:"-i" help:"prompt before every action, even with -y"`
	Yes         bool   `arg:"-y" help:"answer yes to every question"`
	Config      string `arg:"-c,--config" help:"YAML configuration profile"`
	Strict      bool   `arg:"--strict" help:"abort on the first missing sprite or malformed tile"`
	Workers     int    `arg:"--workers" help:"pages composed in parallel (default: number of CPUs)"`
	Inspect     bool   `arg:"--inspect" help:"print the page layout as JSON instead of converting"`
	MCP         bool   `arg:"--mcp" help:"serve the converter as MCP tools on stdin/stdout"`
}

func (args) Description() string {
	return "Convert MHTML to PDF."
}

func (args) Epilog() string {
	return `Examples:
  mhtml2pdf -y -m input.mhtml -o /path/to/output.pdf
	output file: /path/to/output.pdf
  mhtml2pdf -y -m input.mhtml -d /path/to/
	output file: /path/to/input.pdf
  mhtml2pdf -y -m input.mhtml -d /path/to/ -n output.pdf
	output file: /path/to/output.pdf`
}

func (args) Version() string {
	return "mhtml2pdf " + version
}

// errCancelled ends the run without converting, with a zero exit status.
var errCancelled = errors.New("operation cancelled")

func main() {
	var a args
	p := arg.MustParse(&a)

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel(os.Getenv("LOG_LEVEL"))}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	err := run(ctx, a, &cli{in: bufio.NewReader(os.Stdin), out: os.Stdout, errOut: os.Stderr, logger: logger, progress: true})
	switch {
	case err == nil:
	case errors.Is(err, errCancelled):
		fmt.Println("Operation cancelled.")
	case errors.Is(err, errUsage):
		p.WriteUsage(os.Stderr)
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	default:
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// cli carries the process streams so run can be driven from tests.
type cli struct {
	in     *bufio.Reader
	out    io.Writer
	errOut io.Writer
	logger *slog.Logger
	// progress draws a progress bar on errOut when set.
	progress bool
}

var errUsage = errors.New("usage")

func run(ctx context.Context, a args, c *cli) error {
	cfg, err := loadConfig(a, c.logger)
	if err != nil {
		return err
	}

	if a.MCP {
		pipe, err := docpipe.New(cfg)
		if err != nil {
			return err
		}
		srv := mcp.NewServer(&mcp.Implementation{Name: "mhtml2pdf", Version: version}, nil)
		pipe.RegisterMCP(srv)
		c.logger.Info("serving MCP tools on stdio")
		return srv.Run(ctx, &mcp.StdioTransport{})
	}

	if a.MHTML == "" {
		return fmt.Errorf("%w: --mhtml (-m) is required", errUsage)
	}
	input, err := filepath.Abs(a.MHTML)
	if err != nil {
		return err
	}
	if info, err := os.Stat(input); err != nil || !info.Mode().IsRegular() {
		return fmt.Errorf("file %s does not exist", input)
	}

	if a.Inspect {
		pipe, err := docpipe.New(cfg)
		if err != nil {
			return err
		}
		pages, err := pipe.Inspect(ctx, input)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(c.out)
		enc.SetIndent("", "  ")
		return enc.Encode(pages)
	}

	output, err := outputPath(a, input)
	if err != nil {
		return err
	}

	if info, err := os.Stat(output); err == nil {
		if info.IsDir() {
			return fmt.Errorf("%s is a directory", output)
		}
		if a.Interactive || !a.Yes {
			if !c.confirm(fmt.Sprintf("File %s already exists, do you want to overwrite it? (y/n): ", output)) {
				return errCancelled
			}
		}
	}
	if a.Interactive || !a.Yes {
		if !c.confirm(fmt.Sprintf("Convert %s to %s? (y/n): ", input, output)) {
			return errCancelled
		}
	}

	if c.progress {
		cfg.Progress = progressFunc(c.errOut)
	}
	pipe, err := docpipe.New(cfg)
	if err != nil {
		return err
	}
	rep, err := pipe.Convert(ctx, input, output)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%s: %d pages written", output, rep.Pages)
	if rep.SkippedTiles > 0 {
		fmt.Fprintf(c.out, " (%d of %d tiles missing)", rep.SkippedTiles, rep.Tiles)
	}
	fmt.Fprintln(c.out)
	return nil
}

// loadConfig merges the optional YAML profile with command line flags.
func loadConfig(a args, logger *slog.Logger) (docpipe.Config, error) {
	var cfg docpipe.Config
	if a.Config != "" {
		var err error
		if cfg, err = docpipe.LoadConfig(a.Config); err != nil {
			return docpipe.Config{}, err
		}
	}
	if a.Strict {
		cfg.Policy = policy.Strict
	}
	if a.Workers > 0 {
		cfg.Workers = a.Workers
	}
	cfg.Logger = logger
	return cfg, nil
}

// outputPath resolves -o, -d and -n into the PDF path.
func outputPath(a args, input string) (string, error) {
	switch {
	case a.OutputFile != "" && a.OutputDir != "":
		return "", fmt.Errorf("%w: --output-file (-o) and --output-dir (-d) are mutually exclusive", errUsage)
	case a.Filename != "" && a.OutputFile != "":
		return "", fmt.Errorf("%w: --filename (-n) and --output-file (-o) are mutually exclusive", errUsage)
	case a.Filename != "" && a.OutputDir == "":
		return "", fmt.Errorf("%w: --filename (-n) requires --output-dir (-d)", errUsage)
	case a.OutputFile == "" && a.OutputDir == "":
		return "", fmt.Errorf("%w: one of --output-file (-o) or --output-dir (-d) is required", errUsage)
	}

	var output, dir string
	if a.OutputFile != "" {
		abs, err := filepath.Abs(a.OutputFile)
		if err != nil {
			return "", err
		}
		output, dir = abs, filepath.Dir(abs)
	} else {
		abs, err := filepath.Abs(a.OutputDir)
		if err != nil {
			return "", err
		}
		dir = abs
		output = docpipe.OutputPath(input, dir, a.Filename)
	}

	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return "", fmt.Errorf("directory %s does not exist", dir)
	}
	return output, nil
}

// confirm asks a y/n question. Anything but "y" is a no.
func (c *cli) confirm(question string) bool {
	fmt.Fprint(c.out, question)
	line, err := c.in.ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(line), "y")
}

// progressFunc draws a bar sized on the first report.
func progressFunc(w io.Writer) func(done, total int) {
	var bar *progressbar.ProgressBar
	return func(done, total int) {
		if bar == nil {
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetWriter(w),
				progressbar.OptionSetDescription("Composing pages"),
				progressbar.OptionShowCount(),
				progressbar.OptionSetWidth(40),
				progressbar.OptionThrottle(65*time.Millisecond),
				progressbar.OptionOnCompletion(func() {
					fmt.Fprintln(w)
				}),
			)
		}
		_ = bar.Set(done)
	}
}

func logLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
