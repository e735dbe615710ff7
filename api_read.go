package fieldbus

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/ctrlworks/fieldbus/modbus"
)

// ReadEndpoint is the endpoint for on-demand reads that bypass the poll
// cache and go to the bus.
const ReadEndpoint = "/read"

// ReadRequest asks for one read against a registered device.
type ReadRequest struct {
	Device   string `json:"device"`
	Function byte   `json:"function"`
	Address  uint16 `json:"address"`
	Quantity uint16 `json:"quantity"`
}

// HandleRead is the handler for on-demand reads.
func HandleRead(logger *zap.SugaredLogger, registry map[string]*DeviceInfo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cl := logger.With("endpoint", ReadEndpoint, "remote", r.RemoteAddr)

		cl.Debug("got request to endpoint")

		if r.Method != http.MethodPost {
			http.Error(w, "POST only", http.StatusMethodNotAllowed)
			return
		}

		var req ReadRequest

		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			cl.Errorw("decode request body", "error", err)
			http.Error(w, err.Error(), http.StatusBadRequest)

			return
		}

		dev, ok := registry[req.Device]
		if !ok {
			http.Error(w, fmt.Sprintf("unknown device %q", req.Device), http.StatusNotFound)
			return
		}

		block := PollBlock{Function: req.Function, Address: req.Address, Quantity: req.Quantity}

		result, err := readBlock(r.Context(), dev, block)
		if err != nil {
			cl.Errorw("read from device", "device", req.Device, "error", err)
			http.Error(w, err.Error(), readStatusCode(err))

			return
		}

		if result.Bits == nil && result.Registers == nil {
			http.Error(w, fmt.Sprintf("function %#02x is not a read", req.Function), http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "application/json")

		if err := json.NewEncoder(w).Encode(result); err != nil {
			cl.Errorw("encode response", "error", err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}

// readStatusCode maps bus failures onto HTTP: a device exception is the
// caller's problem, silence on the wire is the gateway's.
func readStatusCode(err error) int {
	var exc *modbus.ExceptionError
	if errors.As(err, &exc) {
		return http.StatusBadRequest
	}

	if errors.Is(err, modbus.ErrTimeout) {
		return http.StatusGatewayTimeout
	}

	return http.StatusInternalServerError
}
