// Command geohash prints the 12-character geohash of a lat/lon pair,
// the same encoding the tracker stores in movement history frames.
package main

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/mmcloughlin/geohash"
)

func main() {
	if len(os.Args) < 3 {
		log.Fatalf("usage: %s <lat> <lon>", os.Args[0])
	}
	lat, err := strconv.ParseFloat(strings.TrimSuffix(os.Args[1], ","), 64)
	if err != nil {
		log.Fatalf("invalid latitude %q: %v", os.Args[1], err)
	}
	lon, err := strconv.ParseFloat(os.Args[2], 64)
	if err != nil {
		log.Fatalf("invalid longitude %q: %v", os.Args[2], err)
	}
	fmt.Println(geohash.EncodeWithPrecision(lat, lon, 12))
}
