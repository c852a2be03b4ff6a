package protocol

import "fmt"

// SDKVersion is sent as the first argument of the initialize handshake.
const SDKVersion = "2.31.0"

// LatestRuntimeAPIVersion is sent as the second argument of the initialize
// handshake.
const LatestRuntimeAPIVersion = 4

// Well known action names used by the core itself.
const (
	FuncInitialize      = "initialize"
	FuncRegisterHandler = "registerHandler"
)

// FrameContext identifies where the embedded app is being shown.
type FrameContext string

const (
	FrameContextSettings       FrameContext = "settings"
	FrameContextContent        FrameContext = "content"
	FrameContextAuthentication FrameContext = "authentication"
	FrameContextRemove         FrameContext = "remove"
	FrameContextTask           FrameContext = "task"
	FrameContextSidePanel      FrameContext = "sidePanel"
	FrameContextStage          FrameContext = "stage"
	FrameContextMeetingStage   FrameContext = "meetingStage"
)

// HostClientType identifies the kind of host client.
type HostClientType string

const (
	HostClientDesktop HostClientType = "desktop"
	HostClientWeb     HostClientType = "web"
	HostClientAndroid HostClientType = "android"
	HostClientIOS     HostClientType = "ios"
	HostClientIPadOS  HostClientType = "ipados"
)

// APIVersion is the version component of an api version tag.
type APIVersion int

const (
	APIVersion1 APIVersion = 1
	APIVersion2 APIVersion = 2
)

// APIVersionTag builds the telemetry tag attached to outgoing requests, e.g.
// "v2_app.initialize". The core carries it but never interprets it.
func APIVersionTag(v APIVersion, name string) string {
	return fmt.Sprintf("v%d_%s", v, name)
}
