package main

import (
	"context"

	"github.com/compozy/kernelguard/kernel/kconfig"
	"github.com/compozy/kernelguard/kernel/kdispatch"
	"github.com/compozy/kernelguard/kernel/klifecycle"
	"github.com/compozy/kernelguard/pkg/logger"
)

// bootKernel constructs, configures and boots a Kernel the same way any
// other collaborator would: New, then klifecycle.Boot.
func bootKernel(ctx context.Context, verbose bool) (*kdispatch.Kernel, error) {
	logCfg := logger.TestConfig()
	if verbose {
		logCfg = logger.DefaultConfig()
	}
	log := logger.NewLogger(logCfg)

	cfg, err := kconfig.Load()
	if err != nil {
		return nil, err
	}

	k := kdispatch.New(cfg, log)
	if err := klifecycle.Boot(ctx, k); err != nil {
		return nil, err
	}
	return k, nil
}
