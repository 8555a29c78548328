// internal/ipc/channels.go
package ipc

import (
	"strconv"
	"strings"
)

// Channel names exchanged between a renderer and its host. Requests flow
// renderer→host, notifications host→renderer.
const (
	// ChannelWindowCloseRequest asks the host to close a window. Args: id.
	ChannelWindowCloseRequest = "window-close-request"
	// ChannelWindowMethodRequest invokes focus or blur. Args: id, method.
	ChannelWindowMethodRequest = "window-method-request"
	// ChannelContentsMethodRequest invokes print or executeJavaScript on the
	// window's contents. Args: id, method, args...
	ChannelContentsMethodRequest = "contents-method-request"
	// ChannelContentsMethodSyncRequest invokes getURL or loadURL and returns
	// the result. Args: id, method, [url].
	ChannelContentsMethodSyncRequest = "contents-method-sync-request"
	// ChannelPostMessage relays a message to a window.
	// Args: id, message, targetOrigin, senderOrigin.
	ChannelPostMessage = "window-postmessage"
	// ChannelPostMessageNotify delivers a relayed message to its target page.
	// Args: sourceId, message, sourceOrigin.
	ChannelPostMessageNotify = "window-postmessage-notify"
	// ChannelWindowOpenRequest opens a new window. Args: url, name,
	// disposition, options, additionalFeatures. Replies with an id or a falsy value.
	ChannelWindowOpenRequest = "window-open-request"
	// ChannelNavigationRequest drives the page's own history. Args: operation, [offset].
	ChannelNavigationRequest = "navigation-request"
	// ChannelNavigationSyncRequest queries the page's history. Args: operation.
	ChannelNavigationSyncRequest = "navigation-sync-request"
	// ChannelVisibilityChangeNotify pushes the page visibility. Args: state.
	ChannelVisibilityChangeNotify = "visibility-change-notify"
	// ChannelBrowserWindowClose closes the page's own top-level window.
	ChannelBrowserWindowClose = "browser-window-close-request"
	// ChannelBrowserWindowAlert shows an alert. Args: message, title.
	ChannelBrowserWindowAlert = "browser-window-alert"
	// ChannelBrowserWindowConfirm shows a confirm dialog. Args: message, title.
	ChannelBrowserWindowConfirm = "browser-window-confirm"

	windowClosedPrefix = "window-close-notify:"
)

// Method names carried inside the method request channels.
const (
	MethodFocus             = "focus"
	MethodBlur              = "blur"
	MethodPrint             = "print"
	MethodExecuteJavaScript = "executeJavaScript"
	MethodGetURL            = "getURL"
	MethodLoadURL           = "loadURL"
)

// Navigation operations.
const (
	NavGoBack     = "goBack"
	NavGoForward  = "goForward"
	NavGoToOffset = "goToOffset"
	NavLength     = "length"
)

// DispositionNewWindow is the only disposition a renderer ever requests.
const DispositionNewWindow = "new-window"

// WindowClosedChannel is the one-shot notification channel fired when the
// window with the given id goes away.
func WindowClosedChannel(id int64) string {
	return windowClosedPrefix + strconv.FormatInt(id, 10)
}

// metricLabel folds per-window channels into one label value so metrics
// cardinality does not grow with window ids.
func metricLabel(channel string) string {
	if strings.HasPrefix(channel, windowClosedPrefix) {
		return strings.TrimSuffix(windowClosedPrefix, ":")
	}
	return channel
}
