package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"linkfetch/downloader"
	"linkfetch/internal"
	"linkfetch/resolver"
	"linkfetch/utils"
)

var (
	outputDir    string
	cookiesPath  string
	rateLimit    string
	quiet        bool
	proxyURL     string
	debug        bool
	logLevel     string
	logFile      string
	password     string
	folder       bool
	downloadFile bool
	timeout      int
	config       *internal.Config
)

// errResolutionFailed signals a failure whose message was already printed as
// the result text.
var errResolutionFailed = errors.New("resolution failed")

var rootCmd = &cobra.Command{
	Use:     "linkfetch [OPTIONS] <URL>",
	Short:   "Resolve share links into direct download links",
	Version: "v1.0.0",
	Long: `LinkFetch turns a cloud-disk share page or a webmail large-attachment link
into the direct download URL of the file, optionally downloading it.

Links of any other host are printed unchanged.

Examples:
  linkfetch https://www.lanzoux.com/iAbc123
  linkfetch -p 1234 https://www.lanzoux.com/iAbc123
  linkfetch -f https://www.lanzoux.com/b0folder
  linkfetch -D -o ~/Downloads -r 5M "https://wx.mail.qq.com/ftn/download?key=...&code=..."
  linkfetch download -o ~/Downloads https://cdn.example.com/file.zip

Environment Variables:
  LINKFETCH_OUTPUT_DIR     Download directory
  LINKFETCH_TIMEOUT        Resolution timeout in seconds (0 = none)
  LINKFETCH_PROXY          Proxy URL (http, https, socks5)
  LINKFETCH_RATE_LIMIT     Default download rate limit (e.g., 5M)
  LINKFETCH_COOKIES        Path to Netscape-format cookie file
  LINKFETCH_PAGE_DELAY_MS  Delay between folder pages in milliseconds
  LINKFETCH_DISK_DOMAINS   Extra disk provider host suffixes, comma separated

DISCLAIMER: Respect the providers' Terms of Service and copyright laws.`,
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := loadConfiguration(cmd); err != nil {
			return fmt.Errorf("configuration error: %v", err)
		}

		if err := internal.InitLogger(config); err != nil {
			return fmt.Errorf("failed to initialize logger: %v", err)
		}

		internal.LogDebug("Configuration loaded: timeout=%d, retries=%d, pageDelay=%v, debug=%v, quiet=%v",
			config.DefaultTimeout, config.MaxRetries, config.PageDelay, config.EnableDebug, config.QuietMode)
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		validator := utils.NewURLValidator(config.DiskDomains, config.MailDomains)
		raw, err := buildShareURL(validator, args[0], password, folder)
		if err != nil {
			if validationErr, ok := err.(*internal.ValidationError); ok {
				internal.LogValidationError(validationErr)
			}
			return err
		}
		internal.LogInfo("Processing share link: %s", raw)

		var rateLimitBytes int64
		if downloadFile {
			if rateLimitBytes, err = parseRateLimitFlag(); err != nil {
				return err
			}
		}

		client, err := newSessionClient()
		if err != nil {
			return err
		}
		defer client.Close()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		resolveCtx := ctx
		if limit := config.ResolveTimeout(); limit > 0 {
			var cancel context.CancelFunc
			resolveCtx, cancel = context.WithTimeout(ctx, limit)
			defer cancel()
		}

		result := resolver.New(client, resolver.OptionsFromConfig(config)).Resolve(resolveCtx, raw)

		if result.IsError() && internal.IsCancelled(result.Err) {
			fmt.Fprintln(cmd.ErrOrStderr(), "Resolution cancelled.")
			return nil
		}

		fmt.Fprintln(cmd.OutOrStdout(), result.String())
		if result.IsError() {
			return errResolutionFailed
		}

		if !downloadFile {
			return nil
		}
		if result.Kind != resolver.ResultURL {
			internal.LogWarn("Folder listings cannot be downloaded directly; pick a link from the report")
			return nil
		}

		return runDownload(ctx, cmd, client, result.URL, rateLimitBytes)
	},
}

var downloadCmd = &cobra.Command{
	Use:   "download <DIRECT_URL>",
	Short: "Download an already resolved direct link",
	Long: `Download a direct link, such as one printed by linkfetch, into the output directory.

The file name is taken from the server's Content-Disposition header, or
generated when the server does not send one.

Examples:
  linkfetch download https://cdn.example.com/file.zip
  linkfetch download -o ~/Downloads -r 2M https://cdn.example.com/file.zip`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fileURL := strings.TrimSpace(args[0])

		validator := utils.NewURLValidator(nil, nil)
		if _, err := validator.ValidateURL(fileURL); err != nil {
			if linkErr, ok := err.(*internal.LinkError); ok {
				internal.LogLinkError(linkErr)
			}
			return err
		}

		rateLimitBytes, err := parseRateLimitFlag()
		if err != nil {
			return err
		}

		client, err := newSessionClient()
		if err != nil {
			return err
		}
		defer client.Close()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		return runDownload(ctx, cmd, client, fileURL, rateLimitBytes)
	},
}

// loadConfiguration loads configuration from environment variables and merges with CLI flags
func loadConfiguration(cmd *cobra.Command) error {
	config = internal.DefaultConfig()
	config.LoadFromEnv()

	if outputDir != "" {
		config.OutputDir = outputDir
	}
	if cookiesPath != "" {
		config.CookiesFile = cookiesPath
	}
	if proxyURL != "" {
		config.ProxyURL = proxyURL
	}
	if rateLimit != "" {
		config.RateLimit = rateLimit
	}
	if cmd.Flags().Changed("timeout") {
		config.DefaultTimeout = timeout
	}

	// Update logging configuration based on CLI flags
	if debug {
		config.EnableDebug = true
		config.LogLevel = "debug"
	}

	if quiet {
		config.QuietMode = true
	}

	if logLevel != "" {
		config.LogLevel = logLevel
	}

	if logFile != "" {
		config.LogFile = logFile
	}

	if config.ProxyURL != "" {
		if err := validateProxyURL(config.ProxyURL); err != nil {
			return err
		}
	}

	return config.ValidateConfig()
}

// buildShareURL appends the password and folder markers the resolver strips
// again. The markers only mean something to the disk provider, so they are
// rejected for any other host. Unparseable input is returned as-is for the
// resolver to report.
func buildShareURL(validator *utils.URLValidator, raw, password string, folder bool) (string, error) {
	raw = strings.TrimSpace(raw)
	if password == "" && !folder {
		return raw, nil
	}

	parsedURL, err := validator.ValidateURL(raw)
	if err != nil {
		return raw, nil
	}
	if validator.DetectProvider(parsedURL.Hostname()) != utils.ProviderDisk {
		return "", internal.NewValidationErrorWithValue("share_url", "--password and --folder only apply to disk share links", parsedURL.Hostname()).
			WithSuggestion("Drop the flags, or add the host with LINKFETCH_DISK_DOMAINS")
	}

	if password != "" {
		raw = utils.AppendQuery(raw, "pwd="+password)
	}
	if folder {
		raw = utils.AppendQuery(raw, "folder")
	}
	return raw, nil
}

func parseRateLimitFlag() (int64, error) {
	if config.RateLimit == "" {
		return 0, nil
	}
	rateLimitBytes, err := utils.ParseRateLimit(config.RateLimit)
	if err != nil {
		validationErr := internal.NewValidationErrorWithValue("rate_limit", "invalid format", config.RateLimit).
			WithSuggestion("Use formats like 1M (1 MB/s), 500K (500 KB/s), 2G (2 GB/s), or 1024 (1024 bytes/s)")
		internal.LogValidationError(validationErr)
		return 0, fmt.Errorf("invalid rate limit format: %v", err)
	}
	internal.LogDebug("Rate limit parsed: %s = %d bytes/sec", config.RateLimit, rateLimitBytes)
	return rateLimitBytes, nil
}

// newSessionClient builds the transport shared by resolution and download and
// imports the configured cookie file into its jar.
func newSessionClient() (*utils.HTTPClient, error) {
	retry := utils.DefaultRetryConfig()
	retry.MaxAttempts = config.MaxRetries

	client, err := utils.NewHTTPClientWithConfig(&utils.HTTPClientConfig{
		ProxyURL:    config.ProxyURL,
		UserAgent:   config.UserAgent,
		RetryConfig: retry,
	})
	if err != nil {
		return nil, err
	}

	if config.CookiesFile != "" {
		count, err := downloader.NewCookieImporter(client).LoadFile(config.CookiesFile)
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to load cookies: %w", err)
		}
		internal.LogInfo("Loaded %d cookies from %s", count, config.CookiesFile)
	}

	return client, nil
}

// runDownload streams fileURL into the output directory. Progress goes to
// stderr; in quiet mode only the saved path is printed, on stdout. A cancelled
// download prints a notice and is not an error.
func runDownload(ctx context.Context, cmd *cobra.Command, client *utils.HTTPClient, fileURL string, rateLimitBytes int64) error {
	out := cmd.ErrOrStderr()
	tracker := utils.NewProgressTracker(out, config.QuietMode)
	engine := downloader.NewStreamEngine(client)

	summary, err := engine.Download(ctx, fileURL, &internal.DownloadConfig{
		OutputDir: config.OutputDir,
		RateLimit: rateLimitBytes,
		Quiet:     config.QuietMode,
		Progress:  tracker.Report,
	})
	if err != nil {
		tracker.Abort()
		if internal.IsCancelled(err) {
			internal.LogInfo("Download cancelled by user")
			fmt.Fprintln(out, cancelNotice(tracker))
			return nil
		}
		if linkErr, ok := err.(*internal.LinkError); ok {
			internal.LogLinkError(linkErr)
		}
		return fmt.Errorf("download failed: %w", err)
	}

	tracker.SetFilename(summary.Path)
	tracker.Finish()
	if tracker.IsQuiet() {
		fmt.Fprintln(cmd.OutOrStdout(), summary.Path)
	}
	internal.LogInfo("Download completed successfully: %s", summary.Path)
	return nil
}

func cancelNotice(tracker *utils.ProgressTracker) string {
	speed, _, percentage := tracker.GetCurrentStats()
	if percentage <= 0 {
		return "Download cancelled. No partial file was kept."
	}
	return fmt.Sprintf("Download cancelled at %.1f%% (%s/s). No partial file was kept.",
		percentage, utils.FormatBytes(int64(speed)))
}

// validateProxyURL validates the proxy URL format
func validateProxyURL(proxyURL string) error {
	for _, scheme := range []string{"http://", "https://", "socks5://", "socks5h://"} {
		if strings.HasPrefix(strings.ToLower(proxyURL), scheme) {
			return nil
		}
	}
	return internal.NewValidationErrorWithValue("proxy_url", "unsupported proxy scheme", proxyURL).
		WithSuggestion("Use formats like http://proxy:8080 or socks5://proxy:1080")
}

func init() {
	config = internal.DefaultConfig()

	rootCmd.AddCommand(downloadCmd)

	rootCmd.Flags().StringVarP(&password, "password", "p", "", "Share password")
	rootCmd.Flags().BoolVarP(&folder, "folder", "f", false, "List a folder share instead of resolving a single file")
	rootCmd.Flags().BoolVarP(&downloadFile, "download", "D", false, "Download the resolved link")

	rootCmd.PersistentFlags().StringVarP(&outputDir, "output-dir", "o", "", "Download directory (env: LINKFETCH_OUTPUT_DIR)")
	rootCmd.PersistentFlags().StringVarP(&rateLimit, "limit-rate", "r", "", "Bandwidth limit (e.g., 5M for 5MB/s) (env: LINKFETCH_RATE_LIMIT)")
	rootCmd.PersistentFlags().StringVarP(&cookiesPath, "cookies", "c", "", "Path to Netscape-format cookie file (env: LINKFETCH_COOKIES)")
	rootCmd.PersistentFlags().StringVar(&proxyURL, "proxy", "", "HTTP/SOCKS proxy URL (env: LINKFETCH_PROXY)")
	rootCmd.PersistentFlags().IntVar(&timeout, "timeout", 0, "Resolution timeout in seconds, 0 for none (env: LINKFETCH_TIMEOUT)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress progress bar output")

	// Logging flags
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging with file and line information (env: LINKFETCH_DEBUG)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Set log level (debug, info, warn, error) (env: LINKFETCH_LOG_LEVEL)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Write logs to file instead of stderr (env: LINKFETCH_LOG_FILE)")
}

// Execute runs the root command. Errors other than an already printed
// resolution failure are reported on stderr.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil && !errors.Is(err, errResolutionFailed) {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return err
}
