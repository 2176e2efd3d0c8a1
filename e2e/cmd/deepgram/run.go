// Command run is a test executor for the deepgram CLI against the live API.
//
// Usage:
//
//	go run ./e2e/cmd/deepgram [test_level]
//
//	test_level:
//	  1       - Speak (one-shot, cache, compressed)
//	  2       - Transcribe (file and URL)
//	  3       - Live listen (v1 and v2, fed from level 1 output)
//	  4       - Streaming speak
//	  5       - Read (text intelligence)
//	  6       - Voice agent
//	  7       - Archive and cache maintenance
//	  all     - All tests (default)
//	  quick   - Quick smoke test (speak + transcribe)
//	  help    - Show usage
//
// Environment variables:
//
//	DEEPGRAM_CONTEXT  - Context name (default: deepgram_e2e)
//	DEEPGRAM_API_KEY  - API Key for auto-context setup
//	DEEPGRAM_CLI      - Path of the deepgram binary (default: from PATH)
package main

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"
)

// ANSI color codes
const (
	colorRed    = "\033[0;31m"
	colorGreen  = "\033[0;32m"
	colorYellow = "\033[1;33m"
	colorBlue   = "\033[0;34m"
	colorReset  = "\033[0m"
)

// sampleURL is the public recording used in Deepgram's own quickstarts.
const sampleURL = "https://dpgr.am/spacewalk.wav"

// testCase describes a single CLI test invocation.
type testCase struct {
	Name  string
	Level int
	Args  []string

	// Input, when set, is written to the command's stdin after Delay.
	Input string
	Delay time.Duration
}

func projectRoot() string {
	if dir := os.Getenv("BUILD_WORKSPACE_DIRECTORY"); dir != "" {
		return dir
	}
	dir, _ := os.Getwd()
	return dir
}

// findCLI locates the deepgram binary.
func findCLI(root string) string {
	if p := os.Getenv("DEEPGRAM_CLI"); p != "" {
		return p
	}
	local := filepath.Join(root, "bin", "deepgram")
	if _, err := os.Stat(local); err == nil {
		return local
	}
	if p, err := exec.LookPath("deepgram"); err == nil {
		return p
	}
	return ""
}

func main() {
	testLevel := "all"
	if len(os.Args) > 1 {
		testLevel = os.Args[1]
	}
	if testLevel == "help" || testLevel == "-h" || testLevel == "--help" {
		showHelp()
		return
	}

	root := projectRoot()
	commandsDir := filepath.Join(root, "e2e", "cmd", "deepgram", "commands")
	outputDir := filepath.Join(root, "e2e", "cmd", "deepgram", "output")
	contextName := envOr("DEEPGRAM_CONTEXT", "deepgram_e2e")

	os.MkdirAll(outputDir, 0755)

	fmt.Println()
	fmt.Println("======================================")
	fmt.Println("   Deepgram CLI Test Runner")
	fmt.Println("======================================")
	fmt.Println()
	logInfo("Test level:  %s", testLevel)
	logInfo("Commands:    %s", commandsDir)
	logInfo("Output:      %s", outputDir)
	logInfo("Context:     %s", contextName)
	fmt.Println()

	cli := findCLI(root)
	if cli == "" {
		logError("Cannot find deepgram binary. Run: go build -o bin/deepgram ./cmd/deepgram")
		os.Exit(1)
	}
	logInfo("CLI binary: %s", cli)

	selected := filterTests(buildTestCases(commandsDir, outputDir), testLevel)
	if len(selected) == 0 {
		logError("Unknown test level: %s", testLevel)
		showHelp()
		os.Exit(1)
	}

	setupContext(cli, contextName)
	runTests(cli, selected, contextName)
}

func buildTestCases(commandsDir, outputDir string) []testCase {
	cmd := func(name string) string { return filepath.Join(commandsDir, name) }
	out := func(name string) string { return filepath.Join(outputDir, name) }

	return []testCase{
		// Level 1: Speak
		{Name: "Speak to WAV", Level: 1,
			Args: []string{"speak", "-f", cmd("speak.yaml"), "-o", out("speech.wav"),
				"The quick brown fox jumps over the lazy dog."}},
		{Name: "Speak from cache", Level: 1,
			Args: []string{"-v", "speak", "-f", cmd("speak.yaml"), "-o", out("speech_cached.wav"),
				"The quick brown fox jumps over the lazy dog."}},
		{Name: "Speak MP3", Level: 1,
			Args: []string{"speak", "-f", cmd("speak-mp3.yaml"), "--no-cache", "-o", out("speech.mp3"),
				"Compressed audio is written as is."}},

		// Level 2: Transcribe (file input requires level 1 output)
		{Name: "Transcribe file", Level: 2,
			Args: []string{"transcribe", "-f", cmd("transcribe.yaml"), "--archive", out("speech.wav"), "--text"}},
		{Name: "Transcribe URL", Level: 2,
			Args: []string{"transcribe", "-f", cmd("transcribe.yaml"), sampleURL,
				"--jq", ".results.channels[0].alternatives[0].transcript"}},

		// Level 3: Live listen (requires level 1 output)
		{Name: "Listen v1", Level: 3,
			Args: []string{"-v", "listen", "-f", cmd("listen.yaml"), "--audio", out("speech.wav"), "--archive"}},
		{Name: "Listen v2", Level: 3,
			Args: []string{"-v", "listen", "-f", cmd("listen-v2.yaml"), "--audio", out("speech.wav")}},

		// Level 4: Streaming speak
		{Name: "Speak stream", Level: 4,
			Args: []string{"speak", "--stream", "--no-play", "-o", out("speech_stream.wav")},
			Input: "First sentence of the stream.\nAnd a second one, flushed separately.\n"},
		{Name: "Speak stream batch", Level: 4,
			Args: []string{"speak", "--stream", "--batch", "--no-play", "-o", out("speech_batch.wav"),
				"One flush", "for the whole input."}},

		// Level 5: Read
		{Name: "Read text", Level: 5,
			Args: []string{"read", "-f", cmd("read.yaml"),
				"Deepgram builds speech recognition and text to speech APIs. " +
					"Developers use them for call analytics, voice agents and captioning."}},

		// Level 6: Voice agent (file input requires level 1 output)
		{Name: "Voice agent", Level: 6,
			Args:  []string{"-v", "agent", "-f", cmd("agent.yaml"), "--functions", "--audio", out("speech.wav"), "--wav-dir", out("agent")},
			Input: "What time is it in Tokyo?\n/quit\n", Delay: 15 * time.Second},

		// Level 7: Archive and cache maintenance
		{Name: "Archive list", Level: 7, Args: []string{"archive", "ls"}},
		{Name: "Cache list", Level: 7, Args: []string{"cache", "ls", "--json"}},
		{Name: "Cache purge", Level: 7, Args: []string{"cache", "purge"}},
	}
}

func filterTests(tests []testCase, level string) []testCase {
	switch level {
	case "all":
		return tests
	case "quick":
		return filterByLevels(tests, 1, 2)
	}
	n, err := strconv.Atoi(level)
	if err != nil || n < 1 || n > 7 {
		return nil
	}
	return filterByLevels(tests, n)
}

func filterByLevels(tests []testCase, levels ...int) []testCase {
	set := make(map[int]bool, len(levels))
	for _, l := range levels {
		set[l] = true
	}
	var out []testCase
	for _, tc := range tests {
		if set[tc.Level] {
			out = append(out, tc)
		}
	}
	return out
}

func setupContext(cli, contextName string) {
	apiKey := os.Getenv("DEEPGRAM_API_KEY")
	if apiKey != "" {
		run(cli, "config", "add-context", contextName, "--api-key", apiKey)
	}
	run(cli, "config", "use-context", contextName)
	logInfo("Context ready: %s", contextName)
}

func runTests(cli string, tests []testCase, contextName string) {
	logInfo("Tests: %d", len(tests))
	fmt.Println()

	passed, failed := 0, 0
	for _, tc := range tests {
		if runTest(cli, tc, append([]string{"-c", contextName}, tc.Args...)) {
			passed++
		} else {
			failed++
		}
	}

	fmt.Println()
	fmt.Println("======================================")
	fmt.Printf("   Results: %s%d passed%s", colorGreen, passed, colorReset)
	if failed > 0 {
		fmt.Printf(", %s%d failed%s", colorRed, failed, colorReset)
	}
	fmt.Println()
	fmt.Println("======================================")
	fmt.Println()

	if failed > 0 {
		os.Exit(1)
	}
}

func runTest(cli string, tc testCase, args []string) bool {
	logInfo("Testing: %s", tc.Name)
	cmd := exec.Command(cli, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if tc.Input != "" {
		r, w := io.Pipe()
		cmd.Stdin = r
		go func() {
			time.Sleep(tc.Delay)
			io.WriteString(w, tc.Input) //nolint:errcheck
			w.Close()
		}()
	}
	start := time.Now()
	if err := cmd.Run(); err != nil {
		logFail("%s: %v", tc.Name, err)
		return false
	}
	logPass("%s (%s)", tc.Name, time.Since(start).Round(time.Millisecond))
	return true
}

func run(name string, args ...string) {
	cmd := exec.Command(name, args...)
	cmd.Run() //nolint:errcheck
}

// Logging helpers
func logInfo(format string, args ...any) {
	fmt.Printf("%s[INFO]%s %s\n", colorBlue, colorReset, fmt.Sprintf(format, args...))
}
func logPass(format string, args ...any) {
	fmt.Printf("%s[PASS]%s %s\n", colorGreen, colorReset, fmt.Sprintf(format, args...))
}
func logFail(format string, args ...any) {
	fmt.Printf("%s[FAIL]%s %s\n", colorRed, colorReset, fmt.Sprintf(format, args...))
}
func logError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "%s[ERROR]%s %s\n", colorRed, colorReset, fmt.Sprintf(format, args...))
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func showHelp() {
	fmt.Println(`Deepgram CLI Test Runner

Usage:
  go run ./e2e/cmd/deepgram [test_level]

Test levels:
  1         Speak (one-shot, cache, compressed)
  2         Transcribe (file and URL)
  3         Live listen (v1 and v2)
  4         Streaming speak
  5         Read
  6         Voice agent
  7         Archive and cache maintenance
  all       All tests (default)
  quick     Quick smoke test (speak + transcribe)
  help      Show this help

Environment variables:
  DEEPGRAM_CONTEXT    Context name (default: deepgram_e2e)
  DEEPGRAM_API_KEY    API Key for auto-context setup
  DEEPGRAM_CLI        Path of the deepgram binary` + "\n" + colorYellow +
		"Levels 2, 3 and 6 read the WAV written by level 1." + colorReset)
}
