package errors

// ErrorTemplate defines a registered error type.
type ErrorTemplate struct {
	Category Category
	Message  string
	Detail   string
	DocURL   string
}

const docBase = "https://reflex.vango.dev/docs/errors/"

// registry maps error codes to their templates.
var registry = map[string]ErrorTemplate{
	// ============================================
	// Protocol Errors (R001-R019)
	// ============================================

	"R001": {
		Category: CategoryProtocol,
		Message:  "Malformed invocation payload",
		Detail:   "The inbound message could not be decoded into an invocation. No target is known, so no broadcast is sent.",
		DocURL:   docBase + "R001",
	},
	"R002": {
		Category: CategoryDispatch,
		Message:  "Reflex handler not found",
		Detail:   "The invocation target does not name a registered handler or method.",
		DocURL:   docBase + "R002",
	},
	"R003": {
		Category: CategoryDispatch,
		Message:  "Wrong number of arguments",
		Detail:   "The number of arguments sent by the client does not fit the handler method's declared parameters.",
		DocURL:   docBase + "R003",
	},
	"R004": {
		Category: CategoryDispatch,
		Message:  "Reflex handler failed",
		Detail:   "The handler returned an error or panicked while processing the invocation.",
		DocURL:   docBase + "R004",
	},
	"R005": {
		Category: CategoryRender,
		Message:  "Reflex failed to re-render",
		Detail:   "The handler completed but rendering the updated page or comparing it to the live document failed.",
		DocURL:   docBase + "R005",
	},
	"R006": {
		Category: CategorySession,
		Message:  "Failed to commit session",
		Detail:   "Session changes made by the handler could not be written to the session store.",
		DocURL:   docBase + "R006",
	},
	"R007": {
		Category: CategoryRender,
		Message:  "Page render rejected by authentication",
		Detail:   "Re-rendering the page returned HTTP 401. Authentication middleware probably ran for the reflex render.",
		DocURL:   docBase + "R007",
	},
	"R008": {
		Category: CategoryRender,
		Message:  "No route matches the page URL",
		Detail:   "The renderer could not match the originating page URL to a route and could not re-render the page.",
		DocURL:   docBase + "R008",
	},
	"R009": {
		Category: CategorySession,
		Message:  "Session could not be loaded",
		Detail:   "The session store failed while opening the session for an invocation. The reflex runs without a session.",
		DocURL:   docBase + "R009",
	},
	"R010": {
		Category: CategoryProtocol,
		Message:  "Invocation rate limited",
		Detail:   "The connection sent invocations faster than the configured rate.",
		DocURL:   docBase + "R010",
	},
	"R011": {
		Category: CategoryProtocol,
		Message:  "WebSocket connection failed",
		Detail:   "The transport connection could not be established or was closed unexpectedly.",
		DocURL:   docBase + "R011",
	},

	// ============================================
	// Client Errors (R020-R039)
	// ============================================

	"R020": {
		Category: CategoryClient,
		Message:  "Element could not be resolved",
		Detail:   "No element on the page matches the attributes of the originating element.",
		DocURL:   docBase + "R020",
	},
	"R021": {
		Category: CategoryClient,
		Message:  "Element match is ambiguous",
		Detail:   "More than one element on the page matches the attributes of the originating element.",
		DocURL:   docBase + "R021",
	},

	// ============================================
	// Config Errors (R040-R059)
	// ============================================

	"R040": {
		Category: CategoryConfig,
		Message:  "Invalid configuration file",
		Detail:   "The configuration file could not be parsed.",
		DocURL:   docBase + "R040",
	},
	"R041": {
		Category: CategoryConfig,
		Message:  "Configuration file not found",
		Detail:   "No reflex.json, reflex.toml or reflex.yaml was found.",
		DocURL:   docBase + "R041",
	},
	"R042": {
		Category: CategoryConfig,
		Message:  "Invalid configuration value",
		Detail:   "A configuration value is out of range or not one of the supported options.",
		DocURL:   docBase + "R042",
	},
	"R043": {
		Category: CategoryConfig,
		Message:  "Unsupported configuration format",
		Detail:   "Configuration files must use the .json, .toml, .yaml or .yml extension.",
		DocURL:   docBase + "R043",
	},
}

// Lookup returns the template for a code.
func Lookup(code string) (ErrorTemplate, bool) {
	t, ok := registry[code]
	return t, ok
}
