package scorm

// condition is the version-independent error taxonomy. Wire codes are
// assigned per version, and for 2004 lifecycle conditions per operation.
type condition int

const (
	condOK condition = iota
	condGeneral
	condInvalidArgument
	condNotInitialized
	condAlreadyInitialized
	condAlreadyTerminated
	condInvalidElement
	condReadOnly
	condWriteOnly
)

// op identifies which protocol operation raised a condition. SCORM 2004
// assigns distinct lifecycle codes per operation; 1.2 does not.
type op int

const (
	opInitialize op = iota
	opGet
	opSet
	opCommit
	opTerminate
)

var opNames = map[op]string{
	opInitialize: "Initialize",
	opGet:        "GetValue",
	opSet:        "SetValue",
	opCommit:     "Commit",
	opTerminate:  "Terminate",
}

// NoError is the success code shared by both versions.
const NoError = "0"

// codeFor maps a condition to the numeric wire code for the session's
// version. Codes are strings on the wire, never integers.
func codeFor(v Version, o op, c condition) string {
	if v == V2004 {
		return code2004(o, c)
	}
	return code12(c)
}

// code12 follows the published SCORM 1.2 error table. The table carries
// no dedicated lifecycle codes beyond "not initialized", so re-initialize
// and post-terminate conditions fall back to the general exception.
func code12(c condition) string {
	switch c {
	case condOK:
		return NoError
	case condInvalidArgument:
		return "201"
	case condNotInitialized:
		return "301"
	case condInvalidElement:
		return "401"
	case condReadOnly:
		return "403"
	case condWriteOnly:
		return "404"
	default:
		return "101"
	}
}

// code2004 follows the SCORM 2004 RTE error table, which splits lifecycle
// violations by operation (before-initialization vs after-termination).
func code2004(o op, c condition) string {
	switch c {
	case condOK:
		return NoError
	case condInvalidArgument:
		return "201"
	case condAlreadyInitialized:
		return "103"
	case condInvalidElement:
		return "401"
	case condReadOnly:
		return "404"
	case condWriteOnly:
		return "405"
	case condNotInitialized:
		switch o {
		case opTerminate:
			return "112"
		case opGet:
			return "122"
		case opSet:
			return "132"
		case opCommit:
			return "142"
		}
	case condAlreadyTerminated:
		switch o {
		case opInitialize:
			return "104"
		case opTerminate:
			return "113"
		case opGet:
			return "123"
		case opSet:
			return "133"
		case opCommit:
			return "143"
		}
	}
	return "101"
}

// errorStrings12 is the SCORM 1.2 code table (LMSGetErrorString).
var errorStrings12 = map[string]string{
	"0":   "No error",
	"101": "General exception",
	"201": "Invalid argument error",
	"202": "Element cannot have children",
	"203": "Element not an array - cannot have count",
	"301": "Not initialized",
	"401": "Not implemented error",
	"402": "Invalid set value, element is a keyword",
	"403": "Element is read only",
	"404": "Element is write only",
	"405": "Incorrect data type",
}

// errorStrings2004 is the SCORM 2004 RTE code table (GetErrorString).
var errorStrings2004 = map[string]string{
	"0":   "No Error",
	"101": "General Exception",
	"102": "General Initialization Failure",
	"103": "Already Initialized",
	"104": "Content Instance Terminated",
	"111": "General Termination Failure",
	"112": "Termination Before Initialization",
	"113": "Termination After Termination",
	"122": "Retrieve Data Before Initialization",
	"123": "Retrieve Data After Termination",
	"132": "Store Data Before Initialization",
	"133": "Store Data After Termination",
	"142": "Commit Before Initialization",
	"143": "Commit After Termination",
	"201": "General Argument Error",
	"301": "General Get Failure",
	"351": "General Set Failure",
	"391": "General Commit Failure",
	"401": "Undefined Data Model Element",
	"402": "Unimplemented Data Model Element",
	"403": "Data Model Element Value Not Initialized",
	"404": "Data Model Element Is Read Only",
	"405": "Data Model Element Is Write Only",
	"406": "Data Model Element Type Mismatch",
	"407": "Data Model Element Value Out Of Range",
	"408": "Data Model Dependency Not Established",
}

// ErrorString returns the human-readable message for a numeric code.
// Unknown codes return "", per protocol. Usable in every lifecycle state.
func ErrorString(v Version, code string) string {
	if v == V2004 {
		return errorStrings2004[code]
	}
	return errorStrings12[code]
}
