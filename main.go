package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/netcache/netcache/internal/config"
	"github.com/netcache/netcache/internal/logging"
	"github.com/netcache/netcache/internal/server"
	"github.com/netcache/netcache/internal/server/routes"
	"github.com/netcache/netcache/internal/session"
	"github.com/netcache/netcache/internal/version"
)

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath  string
	checkOnly   bool
	showVersion bool
	fetchURL    string
	pathOnly    bool
	maxAge      time.Duration
}

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

func main() {
	opts, err := parseCLIFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(stdErr, err.Error())
		os.Exit(2)
	}
	os.Exit(run(opts))
}

// run 根据解析到的 CLI 选项执行业务流程，并返回退出码，方便测试。
func run(opts cliOptions) int {
	if opts.showVersion {
		printVersion()
		return 0
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stdErr, "加载配置失败: %v\n", err)
		return 1
	}

	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}

	if opts.checkOnly {
		fields := logging.BaseFields("check_config", opts.configPath)
		fields["services"] = len(cfg.Services)
		fields["credentials"] = config.CredentialModes(cfg.Services)
		fields["proxy"] = cfg.Global.ProxyEnabled()
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 启动顺序：配置 → 会话（探测/重定向表/缓存目录）→ 一次性抓取或 Fiber 服务。
	// 会话在所有退出路径上关闭，以持久化重定向表。
	sess, err := session.New(ctx, cfg, logger, session.Options{})
	if err != nil {
		fmt.Fprintf(stdErr, "初始化会话失败: %v\n", err)
		return 1
	}
	defer sess.Close()

	fields := logging.BaseFields("startup", opts.configPath)
	fields["services"] = len(cfg.Services)
	fields["listen_port"] = cfg.Global.ListenPort
	fields["connected"] = sess.Connectivity().IsConnected()
	fields["redirect_caching"] = cfg.Global.EnableRedirectCaching
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")

	if opts.fetchURL != "" {
		return runFetch(ctx, sess, opts)
	}

	if err := startHTTPServer(ctx, cfg, sess, logger); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return 1
	}
	return 0
}

// runFetch 抓取单个 URL，输出正文或缓存文件路径。
func runFetch(ctx context.Context, sess *session.Session, opts cliOptions) int {
	if opts.pathOnly {
		path, err := sess.FetchPath(ctx, opts.fetchURL, opts.maxAge)
		if err != nil {
			fmt.Fprintf(stdErr, "抓取失败: %v\n", err)
			return 1
		}
		fmt.Fprintln(stdOut, path)
		return 0
	}
	body, err := sess.Fetch(ctx, opts.fetchURL, opts.maxAge)
	if err != nil {
		fmt.Fprintf(stdErr, "抓取失败: %v\n", err)
		return 1
	}
	_, _ = stdOut.Write(body)
	return 0
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := pflag.NewFlagSet("netcache", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		opts       cliOptions
	)

	fs.StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 NETCACHE_CONFIG 覆盖）")
	fs.BoolVar(&opts.checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVar(&opts.showVersion, "version", false, "显示版本信息")
	fs.StringVar(&opts.fetchURL, "fetch", "", "抓取单个 URL 后退出")
	fs.BoolVar(&opts.pathOnly, "path", false, "配合 --fetch，仅输出缓存文件路径")
	fs.DurationVar(&opts.maxAge, "max-age", 0, "配合 --fetch，覆盖 MaxAgeDefault")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}
	if opts.pathOnly && opts.fetchURL == "" {
		return cliOptions{}, errors.New("--path 需要与 --fetch 一起使用")
	}

	path := os.Getenv("NETCACHE_CONFIG")
	if configFlag != "" {
		path = configFlag
	}
	if path == "" {
		path = "config.toml"
	}
	opts.configPath = path
	return opts, nil
}

func startHTTPServer(ctx context.Context, cfg *config.Config, sess *session.Session, logger *logrus.Logger) error {
	port := cfg.Global.ListenPort
	app, err := server.NewApp(server.AppOptions{
		Logger:     logger,
		Fetcher:    sess,
		ListenPort: port,
	})
	if err != nil {
		return err
	}
	routes.RegisterDiagnosticsRoutes(app, sess)

	go func() {
		<-ctx.Done()
		logger.WithField("action", "shutdown").Info("收到退出信号，关闭 Fiber 服务")
		_ = app.Shutdown()
	}()

	logger.WithFields(logrus.Fields{
		"action": "listen",
		"port":   port,
	}).Info("Fiber 服务启动")

	return app.Listen(fmt.Sprintf(":%d", port))
}
