package fieldbus

import (
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"
)

// WriteEndpoint is the endpoint for register and coil writes.
const WriteEndpoint = "/write"

// WriteRequest asks for one write against a registered device. Exactly
// one of Registers and Coils must be set; a single-element slice uses
// the single-write function codes on the wire.
type WriteRequest struct {
	Device    string   `json:"device"`
	Address   uint16   `json:"address"`
	Registers []uint16 `json:"registers,omitempty"`
	Coils     []bool   `json:"coils,omitempty"`
}

// HandleWrite is the handler for writes to device registers and coils.
func HandleWrite(logger *zap.SugaredLogger, registry map[string]*DeviceInfo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cl := logger.With("endpoint", WriteEndpoint, "remote", r.RemoteAddr)

		cl.Debug("got request to endpoint")

		if r.Method != http.MethodPost {
			http.Error(w, "POST only", http.StatusMethodNotAllowed)
			return
		}

		var req WriteRequest

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

		if (len(req.Registers) == 0) == (len(req.Coils) == 0) {
			http.Error(w, "exactly one of registers and coils must be set", http.StatusBadRequest)
			return
		}

		ctx := r.Context()

		var err error

		switch {
		case len(req.Registers) == 1:
			err = dev.Client.WriteSingleRegister(ctx, dev.Unit, req.Address, req.Registers[0])
		case len(req.Registers) > 1:
			err = dev.Client.WriteMultipleRegisters(ctx, dev.Unit, req.Address, req.Registers)
		case len(req.Coils) == 1:
			err = dev.Client.WriteSingleCoil(ctx, dev.Unit, req.Address, req.Coils[0])
		default:
			err = dev.Client.WriteMultipleCoils(ctx, dev.Unit, req.Address, req.Coils)
		}

		if err != nil {
			cl.Errorw("write to device", "device", req.Device, "error", err)
			http.Error(w, err.Error(), readStatusCode(err))

			return
		}

		cl.Infow("wrote to device",
			"device", req.Device, "address", req.Address,
			"registers", len(req.Registers), "coils", len(req.Coils))

		w.WriteHeader(http.StatusNoContent)
	}
}
