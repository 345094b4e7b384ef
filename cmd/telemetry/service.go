package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"slices"

	"github.com/kardianos/service"
)

const (
	serviceName        = "telemetry"
	serviceDisplayName = "Telemetry ingestion"
	serviceDescription = "Reads sensor frames from a serial device and serves the latest readings over HTTP"
)

// program runs the server under a service manager.
type program struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func (p *program) Start(service.Service) error {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})
	go func() {
		defer close(p.done)
		if err := run(ctx); err != nil {
			log.Printf("service run failed: %v", err)
		}
	}()
	return nil
}

func (p *program) Stop(service.Service) error {
	if p.cancel == nil {
		return nil
	}
	p.cancel()
	<-p.done
	return nil
}

// runService performs a control action such as install or stop, or runs the
// server under the service manager when action is empty.
func runService(action string) error {
	if action != "" && !validServiceAction(action) {
		return fmt.Errorf("unknown action %q: expected one of %v", action, service.ControlAction)
	}

	cfg := &service.Config{
		Name:        serviceName,
		DisplayName: serviceDisplayName,
		Description: serviceDescription,
		Arguments:   serviceArguments(flag.CommandLine),
	}
	s, err := service.New(&program{}, cfg)
	if err != nil {
		return err
	}
	if action == "" {
		return s.Run()
	}
	if err := service.Control(s, action); err != nil {
		return err
	}
	log.Printf("service %s: %s done", serviceName, action)
	return nil
}

func validServiceAction(action string) bool {
	return slices.Contains(service.ControlAction[:], action)
}

// serviceArguments returns the explicitly set flags to pass to the installed
// service, leaving out the ones that only make sense interactively.
func serviceArguments(fs *flag.FlagSet) []string {
	var args []string
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "service", "version", "list-ports":
			return
		}
		args = append(args, fmt.Sprintf("-%s=%s", f.Name, f.Value.String()))
	})
	return args
}
