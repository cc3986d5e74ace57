package main

import (
	"bufio"
	"math"
	"math/rand/v2"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/lancerane/CSVConverter-GCP/internal/blockfmt"
	"github.com/lancerane/CSVConverter-GCP/pkg/logger"
)

func encodeSample(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.ShowSubcommandHelp(c)
	}
	path := c.Args().First()

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	bw := bufio.NewWriter(f)
	enc := blockfmt.NewEncoder(bw)
	rng := rand.New(rand.NewPCG(uint64(c.Int64("seed")), 0))

	n := c.Int("records")
	for i := range n {
		if err := enc.Write(sampleRecord(rng, i)); err != nil {
			return err
		}
	}

	if c.Bool("no-end-marker") {
		err = enc.Flush()
	} else {
		err = enc.Close()
	}
	if err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return err
	}

	logger.Log.Info().Str("file", path).Int("records", n).Msg("Sample log written")
	return nil
}

// sampleRecord fakes a walking gait: slow sinusoids on the IMU axes plus
// noise, a 10ms sample period and an alternating stance prediction.
func sampleRecord(rng *rand.Rand, i int) blockfmt.Record {
	var rec blockfmt.Record
	phase := float64(i) / 50 * 2 * math.Pi
	for axis := range rec.IMU {
		amp := 4000.0
		if axis%6 >= 3 {
			amp = 1500
		}
		side := 0.0
		if axis >= 6 {
			side = math.Pi
		}
		v := amp*math.Sin(phase+side+float64(axis%3)) + rng.NormFloat64()*80
		rec.IMU[axis] = int16(max(math.MinInt16, min(math.MaxInt16, v)))
	}
	for s := range rec.Status {
		rec.Status[s] = 1
	}
	rec.FSR = uint8(128 + 127*math.Sin(phase))
	rec.TimeDelta = 10
	if math.Sin(phase) > 0 {
		rec.Prediction = 1
	}
	return rec
}
