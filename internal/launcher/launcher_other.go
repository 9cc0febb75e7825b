//go:build !windows

package launcher

func platformStrategies(*Launcher) []strategy { return nil }
