package renamer

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/digkill/TGRenameBot/internal/models"
)

// Transition is the operation state machine. It never performs I/O: acc is
// the freshly loaded account and the returned Decision says what to persist
// and what to reply. Every (state, input) pair has an outcome.
func Transition(acc *models.Account, in Input) Decision {
	if (in.Kind == InputFile || in.Kind == InputPhoto) && in.File == nil {
		return reply(textNotExpecting)
	}
	op := acc.Operation
	if op == nil {
		return idle(acc, in)
	}

	switch op.State {
	case models.StateTransferring:
		if in.Kind == InputCancel {
			return Decision{Effect: EffectCancelTransfer, Reply: Reply{Text: textCancelling}}
		}
		return reply(textBusy)
	case models.StateAwaitingDefaultThumbnail:
		return awaitingDefaultThumbnail(in)
	case models.StateAwaitingDefaultCaption:
		return awaitingDefaultCaption(in)
	}

	switch in.Kind {
	case InputCancel:
		return Decision{Effect: EffectDelete, Reply: Reply{Text: textCancelled}}
	case InputSetDefaultThumbnail, InputSetDefaultCaption:
		return reply(textFinishFirst)
	case InputRename:
		return retarget(op, models.StateAwaitingName, fmt.Sprintf(textAskName, op.File.Name))
	case InputAddThumbnail:
		return retarget(op, models.StateAwaitingThumbnail, textAskThumbnail)
	case InputAddCaption:
		return retarget(op, models.StateAwaitingCaption, textAskCaption)
	}

	switch op.State {
	case models.StateAwaitingThumbnail:
		switch in.Kind {
		case InputPhoto:
			next := op.Clone()
			next.CustomThumbnailID = in.File.FileID
			next.State = models.StateNone
			return save(next, textThumbnailSaved, MenuOperation)
		case InputSkipThumbnail:
			next := op.Clone()
			next.CustomThumbnailID = ""
			next.State = models.StateNone
			return save(next, textThumbnailSkipped, MenuOperation)
		case InputSkipCaption:
			return reply(textNothingToSkip)
		default:
			return reply(textThumbnailNeeded)
		}

	case models.StateAwaitingCaption:
		switch in.Kind {
		case InputText:
			if strings.TrimSpace(in.Text) == "" {
				return reply(textCaptionEmpty)
			}
			caption := in.Text
			next := op.Clone()
			next.CustomCaption = &caption
			next.State = models.StateNone
			return save(next, textCaptionSaved, MenuOperation)
		case InputSkipCaption:
			next := op.Clone()
			next.CustomCaption = nil
			next.State = models.StateNone
			return save(next, textCaptionSkipped, MenuOperation)
		case InputSkipThumbnail:
			return reply(textNothingToSkip)
		case InputFile, InputPhoto:
			return intake(acc, in)
		case InputUnsupported:
			return reply(textCaptionNeeded)
		}

	case models.StateAwaitingName:
		switch in.Kind {
		case InputText:
			name, err := ValidateName(in.Text)
			if err != nil {
				reason := err.Error()
				if ne, ok := err.(*NameError); ok {
					reason = ne.Reason
				}
				return reply(fmt.Sprintf(textBadName, reason))
			}
			next := op.Clone()
			next.NewName = name
			next.State = models.StateTransferring
			return Decision{Effect: EffectStartTransfer, Op: next}
		case InputFile, InputPhoto:
			return intake(acc, in)
		case InputSkipThumbnail, InputSkipCaption:
			return reply(textNothingToSkip)
		case InputUnsupported:
			return reply(textNameNeeded)
		}

	case models.StateNone:
		switch in.Kind {
		case InputFile, InputPhoto:
			return intake(acc, in)
		case InputText:
			return Decision{Effect: EffectReply, Reply: Reply{Text: textUseButtons, Menu: MenuOperation}}
		case InputSkipThumbnail, InputSkipCaption:
			return reply(textNothingToSkip)
		case InputUnsupported:
			return reply(textUnsupported)
		}
	}

	return reply(textNotExpecting)
}

func idle(acc *models.Account, in Input) Decision {
	switch in.Kind {
	case InputFile, InputPhoto:
		return intake(acc, in)
	case InputSkipThumbnail, InputSkipCaption:
		return reply(textNothingToSkip)
	case InputUnsupported:
		return reply(textUnsupported)
	case InputRename, InputAddThumbnail, InputAddCaption:
		return reply(textSendFileFirst)
	case InputCancel:
		return reply(textNothingToCancel)
	case InputSetDefaultThumbnail:
		return save(newOperation(in, models.StateAwaitingDefaultThumbnail, nil), textAskDefaultThumb, MenuNone)
	case InputSetDefaultCaption:
		return save(newOperation(in, models.StateAwaitingDefaultCaption, nil), textAskDefaultCap, MenuNone)
	}
	return reply(textNotExpecting)
}

func awaitingDefaultThumbnail(in Input) Decision {
	switch in.Kind {
	case InputPhoto:
		return Decision{Effect: EffectSetDefaultThumbnail, Value: in.File.FileID, Reply: Reply{Text: textDefaultThumbSet}}
	case InputCancel:
		return Decision{Effect: EffectDelete, Reply: Reply{Text: textCancelled}}
	case InputFile, InputText, InputUnsupported:
		return reply(textNeedDefaultThumb)
	case InputSkipThumbnail, InputSkipCaption:
		return reply(textNothingToSkip)
	case InputSetDefaultCaption:
		return reply(textFinishFirst)
	case InputSetDefaultThumbnail:
		return reply(textAskDefaultThumb)
	}
	return reply(textSendFileFirst)
}

func awaitingDefaultCaption(in Input) Decision {
	switch in.Kind {
	case InputText:
		if strings.TrimSpace(in.Text) == "" {
			return reply(textNeedDefaultCap)
		}
		return Decision{Effect: EffectSetDefaultCaption, Value: in.Text, Reply: Reply{Text: textDefaultCapSet}}
	case InputCancel:
		return Decision{Effect: EffectDelete, Reply: Reply{Text: textCancelled}}
	case InputFile, InputPhoto, InputUnsupported:
		return reply(textNeedDefaultCap)
	case InputSkipThumbnail, InputSkipCaption:
		return reply(textNothingToSkip)
	case InputSetDefaultThumbnail:
		return reply(textFinishFirst)
	case InputSetDefaultCaption:
		return reply(textAskDefaultCap)
	}
	return reply(textSendFileFirst)
}

// intake replaces whatever operation is pending with a new one for in.File,
// unless the file does not fit into today's quota.
func intake(acc *models.Account, in Input) Decision {
	if !acc.Fits(in.File.Size) {
		return Decision{Effect: EffectReply, Reply: Reply{Text: quotaText(acc, in.File)}, QuotaRejected: true}
	}
	file := *in.File
	return save(newOperation(in, models.StateNone, &file), fileMenuText(&file), MenuOperation)
}

func retarget(op *models.Operation, state models.OperationState, text string) Decision {
	next := op.Clone()
	next.State = state
	return save(next, text, MenuNone)
}

func newOperation(in Input, state models.OperationState, file *models.SourceFile) *models.Operation {
	return &models.Operation{
		ID:        uuid.NewString(),
		State:     state,
		File:      file,
		CreatedAt: in.At,
	}
}

func save(op *models.Operation, text string, menu Menu) Decision {
	return Decision{Effect: EffectSave, Op: op, Reply: Reply{Text: text, Menu: menu}}
}

func reply(text string) Decision {
	return Decision{Effect: EffectReply, Reply: Reply{Text: text}}
}
