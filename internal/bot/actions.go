package bot

// Reserved internal action names. These always resolve in every router,
// registered or not, so core dispatch paths (fallback replies, coordinate
// events, chunk rendering) can never raise an unregistered-action error.
const (
	// ActionDefault routes unclassified input to the generic fallback
	// reply. Matches the NLU gateway's default classification.
	ActionDefault = "default"

	// ActionDisplayChunk renders a pre-built rich message template carried
	// in the request parameters.
	ActionDisplayChunk = "display_chunk"

	// ActionHandleCoordinates receives location attachments as
	// {lat, long} parameters.
	ActionHandleCoordinates = "handle_coordinates"
)

// ParamLat and ParamLong carry the coordinate pair for
// ActionHandleCoordinates requests.
const (
	ParamLat  = "lat"
	ParamLong = "long"
)

// ParamChunk carries the serialized message template for
// ActionDisplayChunk requests.
const ParamChunk = "chunk"

// reservedActions lists the names every router pre-registers.
func reservedActions() []string {
	return []string{ActionDefault, ActionDisplayChunk, ActionHandleCoordinates}
}
