package fieldbus

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DevicesEndpoint is the endpoint that reports the state of every
// registered device.
const DevicesEndpoint = "/devices"

// DeviceReport is one device's entry in the DevicesEndpoint response.
type DeviceReport struct {
	Bus       string    `json:"bus"`
	Unit      byte      `json:"unit"`
	Available bool      `json:"available"`
	LastSeen  time.Time `json:"last_seen,omitempty"`
	Error     string    `json:"error,omitempty"`

	Snapshot *Snapshot `json:"snapshot,omitempty"`
}

// HandleDevices is the handler for the endpoint reporting device state
// out of the poll cache.
func HandleDevices(logger *zap.SugaredLogger, registry map[string]*DeviceInfo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cl := logger.With("endpoint", DevicesEndpoint, "remote", r.RemoteAddr)

		cl.Debug("got request to endpoint")

		type namedReport struct {
			name   string
			report DeviceReport
		}

		reports := make(chan namedReport)
		done := make(chan struct{})
		response := make(map[string]DeviceReport, len(registry))

		go func() {
			for nr := range reports {
				response[nr.name] = nr.report
			}

			close(done)
		}()

		var wg sync.WaitGroup

		wg.Add(len(registry))

		for _, dev := range registry {
			go func(dev *DeviceInfo) {
				defer wg.Done()

				report := DeviceReport{Bus: dev.Bus, Unit: dev.Unit}

				snap, err := dev.State.Latest()
				if err != nil {
					report.Error = err.Error()
				} else {
					report.Available = snap.Error == ""
					report.LastSeen = snap.At
					report.Snapshot = &snap

					if snap.Error != "" {
						report.Error = snap.Error
					}
				}

				reports <- namedReport{name: dev.Name, report: report}
			}(dev)
		}

		wg.Wait()
		close(reports)
		<-done

		w.Header().Set("Content-Type", "application/json")

		if err := json.NewEncoder(w).Encode(response); err != nil {
			cl.Errorw("encode response", "error", err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}
