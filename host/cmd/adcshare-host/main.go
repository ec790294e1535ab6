package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"time"

	"adcshare/core"
	"adcshare/host/config"
	"adcshare/host/mcu"
	"adcshare/host/sim"
)

var (
	configPath = flag.String("config", "", "Channel profile (YAML)")
	device     = flag.String("device", "", "Serial device path (overrides port.device)")
	count      = flag.Int("count", -1, "Poll rounds, 0 = until interrupted (overrides poll.count)")
	simulate   = flag.Bool("sim", false, "Run against an in-process simulated MCU")
	dict       = flag.Bool("dict", false, "Print the message dictionary and exit")
)

func main() {
	flag.Parse()

	if *dict {
		fmt.Print(mcu.NewMCU().Messages())
		return
	}
	if *configPath == "" {
		log.Fatal("usage: adcshare-host -config <profile.yaml> [-device path] [-count n] [-sim]")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	if *device != "" {
		cfg.Port.Device = *device
	}
	if *count >= 0 {
		cfg.Poll.Count = *count
	}
	if err := config.Validate(cfg); err != nil {
		log.Fatalf("config validation failed: %v", err)
	}
	config.Normalize(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	conn := mcu.NewMCU()
	if *simulate {
		target := sim.Start(sim.NewDriver(), core.LineFitting{})
		defer target.Close()
		conn.Attach(target.Port())
		if err := conn.RetrieveDictionary(); err != nil {
			log.Fatalf("identify failed: %v", err)
		}
		log.Printf("connected to simulated MCU")
	} else {
		if err := conn.ConnectWithConfig(cfg.Port.Serial()); err != nil {
			log.Fatalf("connect failed: %v", err)
		}
		log.Printf("connected to %s at %d baud", cfg.Port.Device, cfg.Port.Baud)
	}
	defer conn.Close()

	fw := conn.GetDictionary()
	log.Printf("firmware %s, calibration %s, conflict policy %s",
		fw.Version, fw.Config["ADC_CALIBRATION"], fw.Config["ADC_CONFLICT_POLICY"])

	if err := run(ctx, mcu.NewADCClient(conn), cfg, os.Stdout); err != nil {
		log.Fatalf("%v", err)
	}
}

// run acquires a handle per consumer, polls every channel until the
// configured round count or ctx ends, and releases the handles.
func run(ctx context.Context, client *mcu.ADCClient, cfg *config.Config, out io.Writer) error {
	acquired := make([]config.ConsumerConfig, 0, len(cfg.Consumers))
	defer func() {
		for _, c := range acquired {
			if err := client.Release(c.OID); err != nil {
				log.Printf("release failed (consumer=%s): %v", c.Name, err)
			}
		}
	}()

	for _, c := range cfg.Consumers {
		configs, err := c.Configs()
		if err != nil {
			return err
		}
		mask, err := client.Acquire(c.OID, configs)
		if err != nil {
			return fmt.Errorf("acquire failed (consumer=%s): %w", c.Name, err)
		}
		acquired = append(acquired, c)

		for i, cc := range configs {
			if mask&(1<<uint(i)) == 0 {
				log.Printf("consumer %s: %s has no calibration, raw values only", c.Name, cc)
			}
		}
	}

	st, err := client.Stats()
	if err != nil {
		return fmt.Errorf("stats failed: %w", err)
	}
	log.Printf("handles=%d %s refs=%d %s refs=%d", st.Handles,
		core.UnitA, st.Unit(core.UnitA).Refs, core.UnitB, st.Unit(core.UnitB).Refs)

	ticker := time.NewTicker(time.Duration(cfg.Poll.IntervalMs) * time.Millisecond)
	defer ticker.Stop()

	for round := 0; cfg.Poll.Count == 0 || round < cfg.Poll.Count; round++ {
		if round > 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
		}
		if err := pollOnce(client, cfg.Consumers, out); err != nil {
			return err
		}
	}
	return nil
}

// pollOnce prints one line per channel. Per-channel read failures are
// printed, not returned; only link errors stop the loop.
func pollOnce(client *mcu.ADCClient, consumers []config.ConsumerConfig, out io.Writer) error {
	for _, c := range consumers {
		configs, err := c.Configs()
		if err != nil {
			return err
		}
		for _, cc := range configs {
			r, err := client.Read(c.OID, cc.Unit, cc.Channel)
			var se *mcu.StatusError
			switch {
			case errors.As(err, &se):
				fmt.Fprintf(out, "%s %s_CH%d: %v\n", c.Name, cc.Unit, cc.Channel, se.Status.Err())
			case err != nil:
				return fmt.Errorf("read failed (consumer=%s): %w", c.Name, err)
			case r.VoltageErr != nil:
				fmt.Fprintf(out, "%s %s_CH%d: raw=%d (%v)\n", c.Name, cc.Unit, cc.Channel, r.Raw, r.VoltageErr)
			default:
				fmt.Fprintf(out, "%s %s_CH%d: raw=%d %dmV\n", c.Name, cc.Unit, cc.Channel, r.Raw, r.MilliVolts)
			}
		}
	}
	return nil
}
