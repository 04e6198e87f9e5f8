package ipc

import (
	"encoding/json"
	"fmt"

	"github.com/antonholmquist/jason"
)

// requestEnvelope is the outer wire shape: {id, method: {type, ...}}. The
// method object's shape varies per type, so it is decoded dynamically
// with jason rather than unmarshaled into one rigid struct.
type requestEnvelope struct {
	ID     uint64          `json:"id"`
	Method json.RawMessage `json:"method"`
}

// ParseRequest decodes one line of the wire protocol into its request id
// and typed Request. An unrecognized or malformed method type is a
// ClientInput-class error the caller should report back on that id
// without closing the connection (spec.md §4.6: "Invalid JSON lines are
// logged and skipped; they do not close the connection").
func ParseRequest(line []byte) (uint64, Request, error) {
	var env requestEnvelope
	if err := json.Unmarshal(line, &env); err != nil {
		return 0, nil, fmt.Errorf("decode request envelope: %w", err)
	}

	method, err := jason.NewObjectFromBytes(env.Method)
	if err != nil {
		return 0, nil, fmt.Errorf("decode method object: %w", err)
	}
	typ, err := method.GetString("type")
	if err != nil {
		return 0, nil, fmt.Errorf("method object missing \"type\": %w", err)
	}

	req, err := decodeByType(typ, method)
	if err != nil {
		return env.ID, nil, err
	}
	return env.ID, req, nil
}

func decodeByType(typ string, method *jason.Object) (Request, error) {
	switch typ {
	case "GetState":
		return GetStateRequest{}, nil
	case "GetChannels":
		return GetChannelsRequest{}, nil
	case "GetChannel":
		name, err := method.GetString("name")
		if err != nil {
			return nil, err
		}
		return GetChannelRequest{Name: name}, nil
	case "GetApps":
		return GetAppsRequest{}, nil
	case "GetProfiles":
		return GetProfilesRequest{}, nil
	case "GetProfile":
		name, err := method.GetString("name")
		if err != nil {
			return nil, err
		}
		return GetProfileRequest{Name: name}, nil
	case "GetDeviceStatus":
		return GetDeviceStatusRequest{}, nil
	case "GetDiagnostics":
		return GetDiagnosticsRequest{}, nil
	case "SetChannelVolume":
		channel, err := method.GetString("channel")
		if err != nil {
			return nil, err
		}
		mix, err := method.GetString("mix")
		if err != nil {
			return nil, err
		}
		volume, err := method.GetFloat64("volume")
		if err != nil {
			return nil, err
		}
		return SetChannelVolumeRequest{Channel: channel, Mix: mix, Volume: volume}, nil
	case "SetChannelMute":
		channel, err := method.GetString("channel")
		if err != nil {
			return nil, err
		}
		mix, err := method.GetString("mix")
		if err != nil {
			return nil, err
		}
		muted, err := method.GetBoolean("muted")
		if err != nil {
			return nil, err
		}
		return SetChannelMuteRequest{Channel: channel, Mix: mix, Muted: muted}, nil
	case "SetMasterVolume":
		mix, err := method.GetString("mix")
		if err != nil {
			return nil, err
		}
		volume, err := method.GetFloat64("volume")
		if err != nil {
			return nil, err
		}
		return SetMasterVolumeRequest{Mix: mix, Volume: volume}, nil
	case "SetMasterMute":
		mix, err := method.GetString("mix")
		if err != nil {
			return nil, err
		}
		muted, err := method.GetBoolean("muted")
		if err != nil {
			return nil, err
		}
		return SetMasterMuteRequest{Mix: mix, Muted: muted}, nil
	case "SetAppRoute":
		pattern, err := method.GetString("app_pattern")
		if err != nil {
			return nil, err
		}
		channel, err := method.GetString("channel")
		if err != nil {
			return nil, err
		}
		return SetAppRouteRequest{Pattern: pattern, Channel: channel}, nil
	case "RemoveAppRoute":
		pattern, err := method.GetString("app_pattern")
		if err != nil {
			return nil, err
		}
		return RemoveAppRouteRequest{Pattern: pattern}, nil
	case "SaveProfile":
		name, err := method.GetString("name")
		if err != nil {
			return nil, err
		}
		return SaveProfileRequest{Name: name}, nil
	case "LoadProfile":
		name, err := method.GetString("name")
		if err != nil {
			return nil, err
		}
		return LoadProfileRequest{Name: name}, nil
	case "DeleteProfile":
		name, err := method.GetString("name")
		if err != nil {
			return nil, err
		}
		return DeleteProfileRequest{Name: name}, nil
	case "SetMicGain":
		gain, err := method.GetFloat64("gain")
		if err != nil {
			return nil, err
		}
		return SetMicGainRequest{Gain: gain}, nil
	case "SetMicMute":
		muted, err := method.GetBoolean("muted")
		if err != nil {
			return nil, err
		}
		return SetMicMuteRequest{Muted: muted}, nil
	case "GetOutputDevices":
		return GetOutputDevicesRequest{}, nil
	case "SetMonitorOutput":
		device, err := method.GetString("device_name")
		if err != nil {
			return nil, err
		}
		return SetMonitorOutputRequest{DeviceName: device}, nil
	case "Subscribe":
		events, err := stringArray(method, "events")
		if err != nil {
			return nil, err
		}
		return SubscribeRequest{Events: events}, nil
	case "Unsubscribe":
		events, err := stringArray(method, "events")
		if err != nil {
			return nil, err
		}
		return UnsubscribeRequest{Events: events}, nil
	case "Shutdown":
		return ShutdownRequest{}, nil
	case "Reconcile":
		return ReconcileRequest{}, nil
	default:
		return nil, fmt.Errorf("unknown method type %q", typ)
	}
}

func stringArray(method *jason.Object, key string) ([]string, error) {
	values, err := method.GetStringArray(key)
	if err != nil {
		return nil, err
	}
	return values, nil
}

// EncodeResult marshals a successful result for request id.
func EncodeResult(id uint64, value any) ([]byte, error) {
	return json.Marshal(ResponseEnvelope{ID: id, Result: Result{Ok: value}})
}

// EncodeError marshals a failed result for request id.
func EncodeError(id uint64, code int, message string) ([]byte, error) {
	return json.Marshal(ResponseEnvelope{ID: id, Result: Result{Err: &WireError{Code: code, Message: message}}})
}

// EncodeEvent marshals an event broadcast.
func EncodeEvent(eventType string, data any) ([]byte, error) {
	return json.Marshal(EventEnvelope{Event: eventType, Data: data})
}
