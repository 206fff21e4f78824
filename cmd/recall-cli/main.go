package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/peterh/liner"

	"github.com/lexlapax/recall/pkg/config"
	"github.com/lexlapax/recall/pkg/log"
	"github.com/lexlapax/recall/pkg/recall"
)

// historyFile is the file where command history is stored
const historyFile = ".recall_history"

func main() {
	configPath := flag.String("config", "", "Path to configuration file (defaults are used when empty)")
	envFile := flag.String("env", ".env", "Path to a .env file with API keys")
	stdinMode := flag.Bool("s", false, "Read commands from stdin and exit when complete")
	flag.Parse()

	if err := config.LoadEnvFiles(*envFile); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log.Setup(cfg.Logging)

	ctx := context.Background()
	mem, err := recall.FromConfig(ctx, cfg)
	if err != nil {
		log.Error("Failed to initialize memory", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := mem.Close(); err != nil {
			log.Error("Failed to close memory", "error", err)
		}
	}()

	s := newSession(mem, cfg, os.Stdout)
	if *stdinMode {
		runStdin(ctx, s, os.Stdin)
		return
	}
	runInteractive(ctx, s)
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		cfg := config.Default()
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return &cfg, nil
	}
	return config.LoadFromFile(path)
}

// runStdin executes one command per line of r. Blank lines and comments are skipped.
func runStdin(ctx context.Context, s *session, r io.Reader) {
	scanner := bufio.NewScanner(r)

	fmt.Fprintln(s.out, "=== Recall (stdin mode) ===")
	s.printBanner()

	for scanner.Scan() {
		input := strings.TrimSpace(scanner.Text())
		if input == "" || strings.HasPrefix(input, "#") || strings.HasPrefix(input, "//") {
			continue
		}

		fmt.Fprint(s.out, s.prompt(), input, "\n")
		if !s.execute(ctx, input) {
			break
		}
	}

	if err := scanner.Err(); err != nil {
		fmt.Fprintf(s.out, "Error reading stdin: %v\n", err)
	}
	fmt.Fprintln(s.out, "Goodbye!")
}

func runInteractive(ctx context.Context, s *session) {
	line := liner.NewLiner()
	defer line.Close()

	line.SetCtrlCAborts(true)
	line.SetMultiLineMode(false)
	line.SetCompleter(func(l string) (c []string) {
		for _, cmd := range commandNames {
			if strings.HasPrefix(cmd, l) {
				c = append(c, cmd)
			}
		}
		return
	})

	if f, err := os.Open(historyFile); err == nil {
		_, _ = line.ReadHistory(f)
		f.Close()
	}
	defer func() {
		if f, err := os.Create(historyFile); err == nil {
			_, _ = line.WriteHistory(f)
			f.Close()
		}
	}()

	fmt.Fprintln(s.out, "\n=== Recall ===")
	s.printBanner()
	fmt.Fprintln(s.out, "Type !help for available commands.")

	for {
		input, err := line.Prompt(s.prompt())
		if err != nil {
			if err == liner.ErrPromptAborted || err == io.EOF {
				fmt.Fprintln(s.out, "\nGoodbye!")
				return
			}
			fmt.Fprintf(s.out, "Error reading input: %v\n", err)
			continue
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		if !s.execute(ctx, input) {
			fmt.Fprintln(s.out, "Goodbye!")
			return
		}
	}
}
