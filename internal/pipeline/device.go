package pipeline

import (
	"context"
	"fmt"
	"strings"
)

// SelectDevice resolves the configured device preference. "auto" asks the
// backend whether an accelerator is available.
func SelectDevice(ctx context.Context, b Backend, pref string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(pref)) {
	case DeviceCUDA:
		return DeviceCUDA, nil
	case DeviceCPU:
		return DeviceCPU, nil
	case "", "auto":
		ok, err := b.AcceleratorAvailable(ctx)
		if err != nil {
			return "", fmt.Errorf("query accelerator: %w", err)
		}
		if ok {
			return DeviceCUDA, nil
		}
		return DeviceCPU, nil
	default:
		return "", fmt.Errorf("unknown device %q", pref)
	}
}
