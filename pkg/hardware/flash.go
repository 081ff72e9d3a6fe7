package hardware

import (
	"context"
	"fmt"
	"time"
)

// EnterFlashMode drives the boot-then-reset GPIO backdoor sequence: boot
// line low, wait 500ms, reset line low, wait another 500ms. On real
// hardware the microcontroller resets itself partway through this
// sequence, so the call never observes a successful return -- it always
// reports a fault on the line that would follow the reset pulse.
func EnterFlashMode(ctx context.Context, gpio GPIOController) error {
	if err := gpio.FlashBoot(true); err != nil {
		return fmt.Errorf("flash mode: assert boot: %w", err)
	}
	if err := sleepCtx(ctx, 500*time.Millisecond); err != nil {
		return err
	}
	if err := gpio.FlashReset(true); err != nil {
		return fmt.Errorf("flash mode: assert reset: %w", err)
	}
	if err := sleepCtx(ctx, 500*time.Millisecond); err != nil {
		return err
	}
	return fmt.Errorf("flash mode: target reset mid-sequence, backdoor entry not observable")
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
