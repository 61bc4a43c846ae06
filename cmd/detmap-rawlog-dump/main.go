package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/fxamacker/cbor/v2"

	"detmap-go/internal/output"
)

type frameHeader struct {
	Type     string `cbor:"type"`
	Encoding string `cbor:"encoding"`
	Width    int    `cbor:"width"`
	Height   int    `cbor:"height"`
	Data     []byte `cbor:"data"`
}

func main() {
	var (
		path  = flag.String("path", "", "Path to rawlog .bin file")
		limit = flag.Int("limit", 10, "Number of records to dump, 0 for all")
	)
	flag.Parse()

	if *path == "" {
		log.Fatal("path is required")
	}

	f, err := os.Open(*path)
	if err != nil {
		log.Fatalf("open rawlog: %v", err)
	}
	defer f.Close()

	count := 0
	frames := 0
	other := 0
	err = output.ReadRawLog(f, func(ts time.Time, payload []byte) error {
		count++
		if len(payload) == 0 {
			fmt.Printf("record %d %s: empty payload\n", count, ts.Format(time.RFC3339Nano))
			return nil
		}
		var hdr frameHeader
		if err := cbor.Unmarshal(payload, &hdr); err != nil {
			fmt.Printf("record %d %s: CBOR decode error: %v\n", count, ts.Format(time.RFC3339Nano), err)
			other++
			return nil
		}
		if hdr.Type == "frame" {
			frames++
		} else {
			other++
		}
		if *limit == 0 || count <= *limit {
			fmt.Printf("record %d %s: type=%s encoding=%s %dx%d data=%dB\n",
				count, ts.Format(time.RFC3339Nano), hdr.Type, hdr.Encoding, hdr.Width, hdr.Height, len(hdr.Data))
		}
		return nil
	})
	if err != nil {
		log.Fatalf("read rawlog: %v", err)
	}

	fmt.Printf("summary: records=%d frames=%d other=%d\n", count, frames, other)
}
