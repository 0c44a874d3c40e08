package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/streampulse/streampulse/internal/bus"
	"github.com/streampulse/streampulse/internal/collector"
	"github.com/streampulse/streampulse/internal/config"
	"github.com/streampulse/streampulse/internal/credentials"
	"github.com/streampulse/streampulse/internal/feed"
	"github.com/streampulse/streampulse/internal/notify"
	"github.com/streampulse/streampulse/internal/platform"
	"github.com/streampulse/streampulse/internal/session"
)

// clientFactory lets embedding builds link platform API clients into the
// watch loop. The core ships none: vendor REST shaping lives outside
// this module.
var clientFactory func(cfg *config.Config, reg *platform.Registry)

// SetClientFactory registers the hook that installs platform clients
// when a watch session starts. Must be called before Execute.
func SetClientFactory(f func(cfg *config.Config, reg *platform.Registry)) {
	clientFactory = f
}

var watchInterval time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch <platform:entity> [<platform:entity>...]",
	Short: "Monitor entities until interrupted",
	Long: "Starts an ephemeral monitoring session for the given entities and runs\n" +
		"collection cycles on schedule until Ctrl-C. Entities are platform-prefixed,\n" +
		"e.g. twitch:ninja twitter:@nasa reddit:r/golang youtube:UC123.",
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		return runWatch(cfg, args)
	},
}

func init() {
	watchCmd.Flags().DurationVarP(&watchInterval, "interval", "i", 0,
		"collection interval per entity (default from config)")
}

func runWatch(cfg *config.Config, args []string) error {
	interval := watchInterval
	if interval <= 0 {
		interval = cfg.Monitor.DefaultInterval
	}

	sess, err := session.New(session.Options{
		MaxConcurrentCycles: cfg.Monitor.MaxConcurrentCycles,
		Chat: collector.ChatConfig{
			Enabled:  cfg.Chat.Enabled,
			Server:   cfg.Chat.Server,
			Duration: cfg.Chat.CollectDuration,
		},
		Creds: credentials.NewStatic(cfg.Credentials()),
	})
	if err != nil {
		return err
	}
	defer sess.Close()

	if clientFactory != nil {
		clientFactory(cfg, sess.Clients)
	} else {
		fmt.Println(color.YellowString("No platform clients linked in; cycles will record errors until a client factory is registered."))
	}

	for _, arg := range args {
		p, key, err := parseEntityArg(arg)
		if err != nil {
			return err
		}
		jobID, err := sess.Monitor(p, key, interval)
		if err != nil {
			return fmt.Errorf("monitor %s: %w", arg, err)
		}
		fmt.Printf("Monitoring %s:%s every %s (job %s)\n", p, key, interval, jobID[:8])
	}

	if pub := feed.NewPublisher(cfg.Feed.Brokers, cfg.Feed.Topic); pub != nil {
		pub.Attach(sess.Events)
		defer pub.Close()
	}
	if n := notify.New(cfg.Notify.SlackToken, cfg.Notify.SlackChannel); n != nil {
		n.Attach(sess.Events)
	}
	sess.Events.Subscribe(printCycleEvent)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go sess.Events.Dispatch(ctx)

	ticker := time.NewTicker(cfg.Monitor.TickInterval)
	defer ticker.Stop()

	// First due-check immediately: fresh jobs default to "due now".
	sess.RunDue(ctx, time.Now())
	for {
		select {
		case <-ctx.Done():
			fmt.Println("\nShutting down, waiting for in-flight cycles...")
			sess.Wait()
			printJobSummary(sess)
			return nil
		case now := <-ticker.C:
			sess.RunDue(ctx, now)
		}
	}
}

func parseEntityArg(arg string) (platform.Platform, string, error) {
	parts := strings.SplitN(arg, ":", 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("expected platform:entity, got %q", arg)
	}
	p := platform.Platform(strings.ToLower(parts[0]))
	if !p.Valid() {
		return "", "", fmt.Errorf("unknown platform %q", parts[0])
	}
	return p, parts[1], nil
}

func printCycleEvent(ev *bus.CycleEvent) {
	stamp := ev.Timestamp.Format("15:04:05")
	if ev.Success {
		extra := ""
		if ev.ChatMessages > 0 {
			extra = fmt.Sprintf(", %d chat messages", ev.ChatMessages)
		}
		if ev.WentLive {
			extra += ", went live"
		}
		fmt.Printf("%s %s %s:%s %d observations%s (%s)\n",
			stamp, color.GreenString("✓"), ev.Platform, ev.Entity, ev.Observations, extra,
			ev.Duration.Truncate(time.Millisecond))
		return
	}
	fmt.Printf("%s %s %s:%s %s\n",
		stamp, color.RedString("✗"), ev.Platform, ev.Entity, ev.Error)
}

func printJobSummary(sess *session.Session) {
	stats := sess.Scheduler.Statistics()
	fmt.Printf("Jobs: %d total, %d active, %d paused, %d runs, %d with errors\n",
		stats.TotalJobs, stats.ActiveJobs, stats.PausedJobs, stats.TotalRuns, stats.JobsWithErrors)

	if dbStats, err := sess.Store.Statistics(); err == nil {
		for _, p := range platform.All() {
			if dbStats.Entities[string(p)] == 0 && dbStats.Observations[string(p)] == 0 {
				continue
			}
			fmt.Printf("  %s: %d entities, %d observations\n",
				p, dbStats.Entities[string(p)], dbStats.Observations[string(p)])
		}
		if dbStats.ChatMessages > 0 {
			fmt.Printf("  chat messages: %d\n", dbStats.ChatMessages)
		}
	}
}
