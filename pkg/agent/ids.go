package agent

import (
	gonanoid "github.com/matoous/go-nanoid/v2"
)

const idAlphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

func newMessageID() string {
	return "msg_" + gonanoid.MustGenerate(idAlphabet, 16)
}

func newToolCallID() string {
	return "call_" + gonanoid.MustGenerate(idAlphabet, 16)
}
