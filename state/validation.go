package state

import (
	"fmt"
	"net/netip"
	"regexp"
	"slices"
)

var namePattern, _ = regexp.Compile("^[0-9A-Za-z._-]+$")

func NameValidator(s string) error {
	if !namePattern.MatchString(s) {
		return fmt.Errorf("%s is not a valid name, must match pattern %s", s, namePattern.String())
	}
	if len(s) > 100 {
		return fmt.Errorf("len(\"%s\") = %d > 100 is too long", s, len(s))
	}
	return nil
}

func linkValidator(cfg *NetworkCfg, a, b NodeId, latency int64) error {
	if !cfg.IsRouter(a) {
		return fmt.Errorf("router %s not defined", a)
	}
	if !cfg.IsRouter(b) {
		return fmt.Errorf("router %s not defined", b)
	}
	if a == b {
		return fmt.Errorf("link from %s to itself", a)
	}
	if latency < 0 {
		return fmt.Errorf("link %s-%s has negative latency %d", a, b, latency)
	}
	return nil
}

func NetworkConfigValidator(cfg *NetworkCfg) error {
	if cfg.Heartbeat <= 0 {
		return fmt.Errorf("heartbeat must be positive, got %d", cfg.Heartbeat)
	}
	if cfg.Duration < 0 {
		return fmt.Errorf("duration must not be negative, got %d", cfg.Duration)
	}
	ids := make([]NodeId, 0)
	owners := make(map[netip.Prefix]NodeId)
	for _, r := range cfg.Routers {
		err := NameValidator(string(r.Id))
		if err != nil {
			return err
		}
		if slices.Contains(ids, r.Id) {
			return fmt.Errorf("duplicate router: %s", r.Id)
		}
		ids = append(ids, r.Id)
		for _, p := range r.Prefixes {
			if !p.IsValid() {
				return fmt.Errorf("router %s has an invalid prefix", r.Id)
			}
			if owner, ok := owners[p.Masked()]; ok {
				return fmt.Errorf("prefix %s is owned by both %s and %s", p, owner, r.Id)
			}
			owners[p.Masked()] = r.Id
		}
	}
	for _, l := range cfg.Links {
		err := linkValidator(cfg, l.A, l.B, l.Latency)
		if err != nil {
			return err
		}
	}
	if _, err := cfg.ExpandLinks(); err != nil {
		return err
	}
	for _, e := range cfg.Events {
		if e.At < 0 {
			return fmt.Errorf("event %s %s-%s is scheduled before the start", e.Kind, e.A, e.B)
		}
		switch e.Kind {
		case EventLinkUp, EventLinkDown:
			err := linkValidator(cfg, e.A, e.B, e.Latency)
			if err != nil {
				return err
			}
		case EventTrace:
			if !cfg.IsRouter(e.A) || !cfg.IsRouter(e.B) {
				return fmt.Errorf("trace %s-%s references an undefined router", e.A, e.B)
			}
		default:
			return fmt.Errorf("unknown event kind %q", e.Kind)
		}
	}
	return nil
}
