package network

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Кадрирование потока: каждое сообщение предваряется длиной uint32 (BE).
// Содержимое кадра непрозрачно для шлюза — это те самые байты, которые
// рекордер кладёт в запись, а плеер отдаёт обратно.

// MaxFrameSize ограничивает размер одного кадра (защита от мусора в потоке).
const MaxFrameSize = 1 << 20 // 1 MiB

// WriteFrame пишет кадр с префиксом длины.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxFrameSize {
		return fmt.Errorf("кадр превышает максимальный размер: %d > %d", len(payload), MaxFrameSize)
	}

	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	if len(payload) == 0 {
		return nil
	}
	_, err := w.Write(payload)
	return err
}

// ReadFrame читает один кадр целиком. Пустой кадр легален.
func ReadFrame(r io.Reader) ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}

	size := binary.BigEndian.Uint32(header[:])
	if size > MaxFrameSize {
		return nil, fmt.Errorf("кадр превышает максимальный размер: %d > %d", size, MaxFrameSize)
	}

	payload := make([]byte, size)
	if size > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, err
		}
	}
	return payload, nil
}
