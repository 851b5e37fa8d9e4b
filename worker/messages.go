package worker

import (
	"fmt"

	"slidebot/models"
)

const (
	msgReceived   = "Got it, your file is in line for conversion... ⏳"
	msgConverting = "Converting in the cloud... ☁️"
	msgUploading  = "Uploading... 🚀"
	msgDone       = "✅ Done."
	msgRejected   = "Only presentation files (.ppt, .pptx) are accepted. 📄"
	msgSendFile   = "Please send a file."
	msgRateLimit  = "You are sending files too quickly, please wait a moment. 🐢"

	msgConversionFailed = "❌ Conversion failed."
	msgInvalidName      = "❌ That file name cannot be used. Please rename the file and try again."
	msgShuttingDown     = "The service is restarting, please send the file again in a minute."
	msgGenericFailure   = "An error occurred while processing your file."
)

// failureText maps a failure reason to the single message the requester sees.
func failureText(reason models.FailureReason) string {
	switch reason {
	case models.ReasonConversion, models.ReasonConversionTimeout:
		return msgConversionFailed
	case models.ReasonInvalidName:
		return msgInvalidName
	case models.ReasonCanceled:
		return msgShuttingDown
	default:
		return msgGenericFailure
	}
}

func admissionSummary(name string, id int64) string {
	return fmt.Sprintf("📩 New user!\nName: %s\nID: %d", name, id)
}

func copyCaption(name string) string {
	return fmt.Sprintf("📑 File from %s", name)
}
