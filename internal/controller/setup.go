/*
Copyright 2024 Alexandre Mahdhaoui

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package controller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"k8s.io/utils/clock"

	"github.com/alexandremahdhaoui/vlab-gateway/internal/adapter"
	"github.com/alexandremahdhaoui/vlab-gateway/internal/types"
	"github.com/alexandremahdhaoui/vlab-gateway/internal/util/metrics"
)

const (
	// StrategyGuestConfig configures the appliance through best-effort guest commands.
	StrategyGuestConfig = "guest-config"
	// StrategyAwaitSentinel reboots the appliance and waits for it to write a sentinel file.
	StrategyAwaitSentinel = "await-sentinel"

	// GatewayVersion is the software version stamped onto configured appliances.
	GatewayVersion = "1.0.0"

	sudo = "/usr/bin/sudo"
)

var (
	ErrUnknownStrategy   = errors.New("unknown setup strategy")
	ErrDuplicateStrategy = errors.New("setup strategy registered twice")
	ErrResolvePublicHost = errors.New("resolving public hostname")
	ErrStampMetadata     = errors.New("stamping appliance metadata")
	ErrSetup             = errors.New("setting up appliance")
)

// --------------------------------------------------- INTERFACE ---------------------------------------------------- //

// SetupStrategy configures a freshly deployed appliance.
type SetupStrategy interface {
	// Name is the key the strategy is registered under.
	Name() string
	// Setup runs the post-deploy sequence against vm.
	Setup(ctx context.Context, session adapter.Session, vm types.VMHandle, username string) error
}

// HostResolver resolves a hostname to its addresses. *net.Resolver implements it.
type HostResolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// --------------------------------------------------- REGISTRY ----------------------------------------------------- //

// StrategyRegistry selects the SetupStrategy of a template image.
type StrategyRegistry struct {
	strategies map[string]SetupStrategy
	images     map[string]string
	fallback   string
}

// NewStrategyRegistry returns a registry holding strategies. images maps an image name to the name of its
// strategy; images absent from it use fallback.
func NewStrategyRegistry(
	images map[string]string,
	fallback string,
	strategies ...SetupStrategy,
) (*StrategyRegistry, error) {
	r := &StrategyRegistry{
		strategies: make(map[string]SetupStrategy, len(strategies)),
		images:     images,
		fallback:   fallback,
	}

	for _, s := range strategies {
		if _, ok := r.strategies[s.Name()]; ok {
			return nil, errors.Join(fmt.Errorf("strategy %q", s.Name()), ErrDuplicateStrategy)
		}

		r.strategies[s.Name()] = s
	}

	for image, name := range images {
		if _, ok := r.strategies[name]; !ok {
			return nil, errors.Join(fmt.Errorf("strategy %q for image %q", name, image), ErrUnknownStrategy)
		}
	}

	if _, ok := r.strategies[fallback]; !ok {
		return nil, errors.Join(fmt.Errorf("fallback strategy %q", fallback), ErrUnknownStrategy)
	}

	return r, nil
}

// ForImage returns the strategy configured for image.
func (r *StrategyRegistry) ForImage(image string) SetupStrategy {
	if name, ok := r.images[image]; ok {
		return r.strategies[name]
	}

	return r.strategies[r.fallback]
}

// ---------------------------------------------------- STAMP ------------------------------------------------------- //

func stamp(ctx context.Context, session adapter.Session, vm types.VMHandle, now time.Time) error {
	b, err := json.Marshal(types.Metadata{
		Component:  types.ComponentName,
		Created:    float64(now.UnixNano()) / float64(time.Second),
		Version:    GatewayVersion,
		Configured: true,
		Generation: 1,
	})
	if err != nil {
		return errors.Join(err, ErrStampMetadata)
	}

	if err := session.Reconfigure(ctx, vm, string(b)); err != nil {
		return errors.Join(err, ErrStampMetadata)
	}

	return nil
}

// shellQuote quotes s for a POSIX shell.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// ------------------------------------------------- GUEST CONFIG --------------------------------------------------- //

// GuestConfigOptions configures the guest-config strategy.
type GuestConfigOptions struct {
	// Credentials is the appliance admin account.
	Credentials types.Credentials

	// Domain is the lab domain. The appliance hostname is "<username>.vlab.<Domain>".
	Domain string
	// PublicURL is the public base URL of the lab. Its host is resolved to find the NTP and DNS forwarders.
	PublicURL string
	// Production flags the appliance as part of a production deployment.
	Production bool

	// LogBroker is the address the guest log shipper sends to.
	LogBroker string
	// LogKey is the symmetric key of the guest log shipper.
	LogKey string
	// DDNSKey is the key the appliance uses to send dynamic DNS updates.
	DDNSKey string
	// ConfigMaster is the address of the configuration-management master.
	ConfigMaster string

	// BootDelay is waited before the first guest command.
	BootDelay time.Duration
	// RebootDelay is waited after the final reboot.
	RebootDelay time.Duration
}

// NewGuestConfigStrategy returns the best-effort strategy: guest commands that fail are logged and skipped.
func NewGuestConfigStrategy(opts GuestConfigOptions, resolver HostResolver, clk clock.Clock) SetupStrategy {
	return &guestConfig{opts: opts, resolver: resolver, clock: clk}
}

type guestConfig struct {
	opts     GuestConfigOptions
	resolver HostResolver
	clock    clock.Clock
}

// guestStep is a named guest command. The name is logged instead of the arguments, which may hold secrets.
type guestStep struct {
	name string
	cmd  types.GuestCommand
}

func (g *guestConfig) Name() string { return StrategyGuestConfig }

func (g *guestConfig) Setup(ctx context.Context, session adapter.Session, vm types.VMHandle, username string) error {
	log := logr.FromContextOrDiscard(ctx).WithValues("strategy", StrategyGuestConfig)

	steps, err := g.steps(ctx, username)
	if err != nil {
		return errors.Join(err, ErrSetup)
	}

	log.V(1).Info("waiting for guest to boot", "delay", g.opts.BootDelay.String())
	g.clock.Sleep(g.opts.BootDelay)

	for _, step := range steps {
		res, err := session.RunCommand(ctx, vm, g.opts.Credentials, step.cmd)
		if err != nil {
			return errors.Join(fmt.Errorf("step %q", step.name), err, ErrSetup)
		}

		if res.ExitCode != 0 {
			metrics.GuestCommandFailures.WithLabelValues(step.name).Inc()
			log.Error(nil, "guest command failed", "step", step.name, "exit_code", res.ExitCode)

			continue
		}

		log.V(1).Info("guest command succeeded", "step", step.name)
	}

	if _, err := session.RunCommand(ctx, vm, g.opts.Credentials, types.GuestCommand{
		Path:    sudo,
		Args:    "/sbin/reboot",
		OneShot: true,
	}); err != nil {
		return errors.Join(err, ErrSetup)
	}

	if err := stamp(ctx, session, vm, g.clock.Now()); err != nil {
		return errors.Join(err, ErrSetup)
	}

	log.V(1).Info("waiting for guest to reboot", "delay", g.opts.RebootDelay.String())
	g.clock.Sleep(g.opts.RebootDelay)

	return nil
}

func (g *guestConfig) steps(ctx context.Context, username string) ([]guestStep, error) {
	u, err := url.Parse(g.opts.PublicURL)
	if err != nil {
		return nil, errors.Join(err, ErrResolvePublicHost)
	}

	addrs, err := g.resolver.LookupHost(ctx, u.Hostname())
	if err != nil {
		return nil, errors.Join(err, ErrResolvePublicHost)
	}

	if len(addrs) == 0 {
		return nil, errors.Join(fmt.Errorf("no address for %q", u.Hostname()), ErrResolvePublicHost)
	}

	publicIP := addrs[0]

	write := func(name, path, content string) guestStep {
		return guestStep{name: name, cmd: types.GuestCommand{
			Path: sudo,
			Args: fmt.Sprintf("/bin/sh -c %s", shellQuote(fmt.Sprintf("echo %s > %s", shellQuote(content), path))),
		}}
	}

	run := func(name, args string) guestStep {
		return guestStep{name: name, cmd: types.GuestCommand{Path: sudo, Args: args}}
	}

	return []guestStep{
		run("hostname", fmt.Sprintf("/usr/bin/hostnamectl set-hostname %s.vlab.%s", username, g.opts.Domain)),
		run("log_target", fmt.Sprintf(
			"/bin/sed -i -e %s /etc/environment",
			shellQuote(fmt.Sprintf("s/VLAB_LOG_TARGET=.*/VLAB_LOG_TARGET=%s/", g.opts.LogBroker)),
		)),
		write("log_key", "/etc/vlab/log_sender.key", g.opts.LogKey),
		write("vlab_url", "/etc/vlab/url", g.opts.PublicURL),
		write("production", "/etc/vlab/production", strconv.FormatBool(g.opts.Production)),
		write("ntp_server", "/etc/vlab/ntp_server", publicIP),
		write("dns_forwarder", "/etc/vlab/dns_forwarder", publicIP),
		write("ddns_key", "/etc/vlab/ddns.key", g.opts.DDNSKey),
		write("config_master", "/etc/salt/minion.d/master.conf", "master: "+g.opts.ConfigMaster),
		run("config_agent", "/bin/systemctl enable salt-minion"),
		run("restart_log_sender", "/bin/systemctl restart vlab-log-sender"),
		run("restart_dns", "/bin/systemctl restart dnsmasq"),
		run("restart_config_agent", "/bin/systemctl restart salt-minion"),
	}, nil
}

// ------------------------------------------------ AWAIT SENTINEL -------------------------------------------------- //

// AwaitSentinelOptions configures the await-sentinel strategy.
type AwaitSentinelOptions struct {
	// Credentials is the appliance admin account.
	Credentials types.Credentials
	// SentinelPath is the file the guest writes once its first-boot network configuration is done.
	SentinelPath string
	// Interval separates two sentinel checks.
	Interval time.Duration
	// MaxAttempts bounds the number of sentinel checks.
	MaxAttempts int
}

// NewAwaitSentinelStrategy returns the readiness-gated strategy. The appliance must write the sentinel
// within the attempt budget, or the setup fails with a KindReadinessTimeout error.
func NewAwaitSentinelStrategy(opts AwaitSentinelOptions, clk clock.Clock) SetupStrategy {
	return &awaitSentinel{opts: opts, clock: clk}
}

type awaitSentinel struct {
	opts  AwaitSentinelOptions
	clock clock.Clock
}

func (a *awaitSentinel) Name() string { return StrategyAwaitSentinel }

func (a *awaitSentinel) Setup(ctx context.Context, session adapter.Session, vm types.VMHandle, _ string) error {
	log := logr.FromContextOrDiscard(ctx).WithValues("strategy", StrategyAwaitSentinel)
	created := a.clock.Now()

	if err := session.RegenerateNICAddresses(ctx, vm); err != nil {
		return errors.Join(err, ErrSetup)
	}

	if err := session.RebootGuest(ctx, vm); err != nil {
		return errors.Join(err, ErrSetup)
	}

	check := types.GuestCommand{Path: "/usr/bin/test", Args: "-f " + a.opts.SentinelPath}
	ready := false
	attempt := 0

	for attempt < a.opts.MaxAttempts {
		if err := ctx.Err(); err != nil {
			return errors.Join(err, ErrSetup)
		}

		if attempt > 0 {
			a.clock.Sleep(a.opts.Interval)
		}

		attempt++

		res, err := session.RunCommand(ctx, vm, a.opts.Credentials, check)
		if err != nil {
			// The guest tools are unavailable while the guest reboots.
			log.V(1).Info("sentinel check failed", "attempt", attempt, "error", err.Error())
			continue
		}

		if res.ExitCode == 0 {
			ready = true
			break
		}
	}

	if !ready {
		return types.NewJobError(
			types.KindReadinessTimeout,
			fmt.Sprintf("gateway never became ready: %s not found after %d attempts", a.opts.SentinelPath, attempt),
			nil,
		)
	}

	// Only a ready appliance is stamped as configured.
	if err := stamp(ctx, session, vm, created); err != nil {
		return errors.Join(err, ErrSetup)
	}

	log.V(1).Info("gateway is ready", "attempts", attempt)

	return nil
}
