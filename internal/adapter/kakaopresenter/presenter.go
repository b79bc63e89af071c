package kakaopresenter

import (
	"context"
	"encoding/base64"
	"strings"

	"github.com/park285/Cheese-TicTacToe-bot/internal/irisfast"
	"github.com/park285/Cheese-TicTacToe-bot/pkg/tttdto"
)

// Presenter delivers formatted messages and board images to KakaoTalk rooms
// without coupling the command layer to iris.
type Presenter struct {
	out irisfast.Egress
}

func NewPresenter(out irisfast.Egress) *Presenter {
	return &Presenter{out: out}
}

func (p *Presenter) SendText(ctx context.Context, room, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return p.out.SendText(ctx, room, text)
}

func (p *Presenter) SendPhoto(ctx context.Context, room string, png []byte, caption string) error {
	if err := p.SendText(ctx, room, caption); err != nil {
		return err
	}
	if len(png) == 0 {
		return nil
	}
	return p.out.SendImage(ctx, room, base64.StdEncoding.EncodeToString(png))
}

// SendBoard posts the caption and then the board image. KakaoTalk has no
// buttons, so without an image the text grid is appended to the caption.
func (p *Presenter) SendBoard(ctx context.Context, room, caption string, state *tttdto.SessionState) error {
	if state == nil {
		return p.SendText(ctx, room, caption)
	}
	if len(state.BoardImage) == 0 {
		text := state.Grid
		if c := strings.TrimSpace(caption); c != "" {
			text = c + "\n\n" + state.Grid
		}
		return p.SendText(ctx, room, text)
	}
	return p.SendPhoto(ctx, room, state.BoardImage, caption)
}
