package dispatch

import (
	"log"
	"os"

	"github.com/technosupport/ts-dispatch/internal/alerts"
)

// BellSounder is the headless audible alert: a terminal bell plus a log
// line. GUI embedders replace it with a real tone generator.
type BellSounder struct{}

func (BellSounder) Play(a alerts.Alert) {
	os.Stdout.Write([]byte{'\a'})
	log.Printf("[Dispatch] Audible alert: %s at site %s (camera %s)", a.EventType, a.SiteID, a.CameraID)
}
