package cli

import (
	"context"
	"fmt"

	"github.com/pterm/pterm"
)

// live redraws every snapshot in place until done is closed or ctx ends
func live[S any](ctx context.Context, updates <-chan S, done <-chan struct{}, render func(S) (string, error)) error {
	area, err := pterm.DefaultArea.Start()
	if err != nil {
		return fmt.Errorf("start live area: %w", err)
	}
	defer func() { _ = area.Stop() }()

	draw := func(snap S) error {
		out, err := render(snap)
		if err != nil {
			return err
		}
		area.Update(out)
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case snap, ok := <-updates:
			if !ok {
				return nil
			}
			if err := draw(snap); err != nil {
				return err
			}
		case <-done:
			// the last snapshot is published before polling ends
			select {
			case snap, ok := <-updates:
				if ok {
					return draw(snap)
				}
			default:
			}
			return nil
		}
	}
}

// first triggers a single refresh and waits for the snapshot it produces
func first[S any](ctx context.Context, updates <-chan S, refresh func(context.Context) bool) (S, error) {
	var zero S
	if !refresh(ctx) {
		return zero, fmt.Errorf("refresh already in flight")
	}
	select {
	case snap, ok := <-updates:
		if !ok {
			return zero, fmt.Errorf("view closed")
		}
		return snap, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
