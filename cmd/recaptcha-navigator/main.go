// Command recaptcha-navigator opens a page in Chrome and solves the reCAPTCHA
// widget on it through the audio challenge.
//
// Usage:
//
//	recaptcha-navigator solve <url> [--submit "#submit"]
//	recaptcha-navigator detect <url> [--chrome]
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	navigator "github.com/CbIPOKGIT/recaptcha-navigator"
	"github.com/CbIPOKGIT/recaptcha-navigator/recaptcha"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	verbose    bool
	visible    bool
	userAgent  string
	proxy      string
	outputJSON bool

	logger zerolog.Logger

	version = "0.1.0"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "recaptcha-navigator",
		Short:        "Navigate to a page and solve its reCAPTCHA via the audio challenge",
		Version:      version,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := zerolog.InfoLevel
			if verbose {
				level = zerolog.DebugLevel
			}
			logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
				Level(level).
				With().Timestamp().Logger()
		},
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&visible, "visible", false, "Show the browser window")
	rootCmd.PersistentFlags().StringVarP(&userAgent, "user-agent", "U", "", "User-Agent for the browser and the audio download")
	rootCmd.PersistentFlags().StringVarP(&proxy, "proxy", "X", "", "Proxy for the browser and the audio download (scheme://host:port)")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "Output result as JSON")

	rootCmd.AddCommand(newSolveCmd())
	rootCmd.AddCommand(newDetectCmd())

	return rootCmd
}

func newSolveCmd() *cobra.Command {
	var (
		submit      string
		sttEndpoint string
		sttToken    string
		sttModel    string
		sttLanguage string
		ffmpeg      string
		timeout     time.Duration
		recheck     int
		attempts    int
		stealthMode bool
	)

	cmd := &cobra.Command{
		Use:   "solve <url>",
		Short: "Open a page and solve the reCAPTCHA on it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Помилку друкує report
			cmd.SilenceErrors = true

			if sttEndpoint == "" {
				sttEndpoint = os.Getenv("RECAPTCHA_STT_ENDPOINT")
			}
			if sttToken == "" {
				sttToken = os.Getenv("RECAPTCHA_STT_TOKEN")
			}
			if sttModel == "" {
				sttModel = os.Getenv("RECAPTCHA_STT_MODEL")
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			transcriberOpts := []recaptcha.TranscriberOption{recaptcha.WithToken(sttToken)}
			if sttModel != "" {
				transcriberOpts = append(transcriberOpts, recaptcha.WithModel(sttModel))
			}
			if sttLanguage != "" {
				transcriberOpts = append(transcriberOpts, recaptcha.WithLanguage(sttLanguage))
			}

			fetcher := recaptcha.NewHTTPFetcher(recaptcha.DEFAULT_FETCH_TIMEOUT).
				SetUserAgent(userAgent).
				SetProxy(proxy)

			timeouts := recaptcha.DefaultTimeouts()
			timeouts.Ceiling = timeout

			solver := recaptcha.New(
				recaptcha.NewWhisperTranscriber(sttEndpoint, transcriberOpts...),
				recaptcha.WithFetcher(fetcher),
				recaptcha.WithTranscoder(recaptcha.NewFFmpegTranscoder(ffmpeg)),
				recaptcha.WithTimeouts(timeouts),
				recaptcha.WithRecheck(recheck, time.Second),
				recaptcha.WithLogger(logger),
			)

			chrome := newChrome(stealthMode)
			chrome.Model.CaptchaAttempts = attempts
			chrome.SetCaptchaSolver(solver)
			defer chrome.Close()

			url := args[0]
			logger.Info().Str("url", url).Msg("navigating")

			err := chrome.Navigate(ctx, url)
			if err == nil && submit != "" {
				err = chrome.Submit(ctx, submit)
			}

			result := map[string]interface{}{
				"success": err == nil,
				"url":     chrome.GetActualUrl(),
				"status":  chrome.GetNavigateStatus(),
				"captcha": chrome.HasCaptcha(),
			}
			if err != nil {
				result["error"] = err.Error()
			}
			report(result)

			return err
		},
	}

	cmd.Flags().StringVarP(&submit, "submit", "S", "", "Selector to click after the captcha is solved")
	cmd.Flags().StringVar(&sttEndpoint, "stt-endpoint", "", "Whisper compatible transcription URL (or RECAPTCHA_STT_ENDPOINT)")
	cmd.Flags().StringVar(&sttToken, "stt-token", "", "Bearer token for the transcription API (or RECAPTCHA_STT_TOKEN)")
	cmd.Flags().StringVar(&sttModel, "stt-model", "", "Transcription model (or RECAPTCHA_STT_MODEL, default whisper-1)")
	cmd.Flags().StringVar(&sttLanguage, "stt-language", "en", "Spoken language hint")
	cmd.Flags().StringVar(&ffmpeg, "ffmpeg", recaptcha.DEFAULT_FFMPEG_BINARY, "ffmpeg binary")
	cmd.Flags().DurationVarP(&timeout, "timeout", "T", recaptcha.DEFAULT_SOLVE_CEILING, "Time budget of one solve attempt")
	cmd.Flags().IntVar(&recheck, "recheck", recaptcha.DEFAULT_RECHECK_ATTEMPTS, "How often the solved mark is checked after submitting")
	cmd.Flags().IntVar(&attempts, "attempts", 3, "Solve attempts, the page is reloaded between them")
	cmd.Flags().BoolVar(&stealthMode, "stealth", true, "Hide headless Chrome fingerprints")

	return cmd
}

func newDetectCmd() *cobra.Command {
	var (
		chromeMode bool
		selector   string
	)

	cmd := &cobra.Command{
		Use:   "detect <url>",
		Short: "Report whether a page shows a reCAPTCHA",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Помилку друкує report
			cmd.SilenceErrors = true

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var nav navigator.Navigator
			if chromeMode {
				nav = newChrome(true)
			} else {
				nav = navigator.NewNavigator(&navigator.Model{UserAgent: userAgent})
				nav.SetLogger(logger)
				if proxy != "" {
					nav.SetProxyGetter(navigator.StaticProxy(proxy))
				}
			}
			defer nav.Close()

			// Без solver навігатор нічого не розв'язує, перевіряємо сторінку самі
			detector := recaptcha.New(nil).SetCaptchaSelector(selector)

			err := nav.Navigate(ctx, args[0])

			result := map[string]interface{}{
				"success": err == nil,
				"url":     args[0],
				"status":  nav.GetNavigateStatus(),
				"captcha": detector.IsCaptcha(nav.GetCrawler()),
			}
			if err != nil {
				result["error"] = err.Error()
			}
			report(result)

			return err
		},
	}

	cmd.Flags().BoolVar(&chromeMode, "chrome", false, "Render the page in Chrome instead of a plain HTTP request")
	cmd.Flags().StringVar(&selector, "selector", "", "Custom captcha selector")

	return cmd
}

func newChrome(stealthMode bool) *navigator.ChromeNavigator {
	chrome := navigator.NewNavigator(&navigator.Model{
		Chrome:    true,
		Visible:   visible,
		Stealth:   stealthMode,
		UserAgent: userAgent,
	}).(*navigator.ChromeNavigator)

	chrome.SetLogger(logger)
	if proxy != "" {
		chrome.SetProxyGetter(navigator.StaticProxy(proxy))
	}
	return chrome
}

func report(result map[string]interface{}) {
	if outputJSON {
		printJSON(result)
		return
	}

	if result["success"] == true {
		fmt.Println("[+] Done")
	} else {
		fmt.Fprintf(os.Stderr, "[x] Error: %v\n", result["error"])
	}
	fmt.Printf("    URL: %v\n", result["url"])
	fmt.Printf("    Status: %v\n", result["status"])
	fmt.Printf("    Captcha: %v\n", result["captcha"])
}

func printJSON(v interface{}) {
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(data))
}
