package renamer

import (
	"fmt"

	"github.com/digkill/TGRenameBot/internal/models"
	"github.com/digkill/TGRenameBot/internal/progress"
)

const (
	textNotExpecting     = "I'm not expecting any input right now. Send me a document, video, audio or photo to rename it."
	textNothingToSkip    = "There is nothing to skip right now."
	textSendFileFirst    = "Send me a file first."
	textNothingToCancel  = "There is nothing to cancel."
	textUseButtons       = "Please use the buttons below to choose what to do with your file."
	textAskName          = "Send me the new file name, including the extension.\nCurrent name: %s"
	textAskThumbnail     = "Send me a photo to use as the thumbnail, or /skip_thumbnail."
	textAskCaption       = "Send me the caption text, or /skip_caption."
	textThumbnailSaved   = "Thumbnail saved. What next?"
	textThumbnailSkipped = "Custom thumbnail removed. What next?"
	textThumbnailNeeded  = "That is not a photo. Send a photo for the thumbnail, or /skip_thumbnail."
	textCaptionSaved     = "Caption saved. What next?"
	textCaptionSkipped   = "Custom caption removed. What next?"
	textCaptionEmpty     = "The caption cannot be empty. Send some text, or /skip_caption."
	textCaptionNeeded    = "Please send the caption as text, or /skip_caption."
	textNameNeeded       = "Please send the new file name as text, or /cancel."
	textUnsupported      = "I can only rename documents, videos, audio files and photos."
	textBadName          = "I can't use that name: %s. Send another name, or /cancel."
	textCancelled        = "Operation cancelled."
	textCancelling       = "Cancelling the transfer..."
	textBusy             = "Your file is being processed. Please wait until it finishes, or /cancel it."
	textFinishFirst      = "Finish or cancel the current file first."
	textAskDefaultThumb  = "Send me a photo to use as your default thumbnail, or /cancel_thumb."
	textNeedDefaultThumb = "Please send a photo, or /cancel_thumb."
	textDefaultThumbSet  = "Default thumbnail saved. It will be used for every file without a custom thumbnail."
	textAskDefaultCap    = "Send me the text to use as your default caption, or /cancel_caption."
	textNeedDefaultCap   = "Please send the caption as text, or /cancel_caption."
	textDefaultCapSet    = "Default caption saved."
	textStale            = "Your file changed in the meantime. Please try again."
	textStoreFailed      = "Something went wrong on my side. Please try again in a moment."
	textGeneratedCaption = "Here is your renamed file: %s"
	textPreparing        = "Preparing..."
	textDone             = "Done! %s has been uploaded."
	textFloodWait        = "Telegram is asking me to wait for %d seconds. Please send the file again after that."
	textFailed           = "An error occurred: %v"
)

func fileMenuText(f *models.SourceFile) string {
	return fmt.Sprintf("File received.\n\nName: %s\nSize: %s\nType: %s\n\nWhat do you want to do?",
		f.Name, progress.HumanBytes(float64(f.Size)), f.Kind)
}

func quotaText(acc *models.Account, f *models.SourceFile) string {
	return fmt.Sprintf("This file would exceed your daily upload limit.\n\nLimit: %s\nUsed today: %s\nThis file: %s\n\nTry again tomorrow or see /upgrade.",
		progress.HumanBytes(float64(acc.DailyLimitBytes)),
		progress.HumanBytes(float64(acc.DailyUploadedBytes)),
		progress.HumanBytes(float64(f.Size)))
}
