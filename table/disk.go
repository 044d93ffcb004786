package table

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/tilepress/backdrop/colorval"
)

// WriteTo writes a sequential record: header, info array, color array.
// NMaxSlots is reset to NUsedSlots on the wire so a subsequent ReadFrom
// reproduces an exact, minimally-sized table.
func (t *Table) WriteTo(w io.Writer) (int64, error) {
	var n int64
	hdr := [4]uint32{uint32(t.Variant), uint32(t.NComps), uint32(t.NUsedSlots), uint32(t.NUsedSlots)}
	if err := binary.Write(w, binary.LittleEndian, hdr); err != nil {
		return n, fmt.Errorf("table: write header: %w", err)
	}
	n += 16

	if t.Variant.hasInfo() {
		for i := 0; i < t.NUsedSlots; i++ {
			info := t.Info[i]
			words := [4]uint32{
				uint32(info.Spot),
				uint32(info.ColorType)<<24 | uint32(info.RenderingIntent)<<16 | uint32(info.BlackType)<<8 | uint32(info.ReproModel),
				uint32(info.Flags),
				info.Label,
			}
			if err := binary.Write(w, binary.LittleEndian, words); err != nil {
				return n, fmt.Errorf("table: write info[%d]: %w", i, err)
			}
			n += 16
		}
	}
	if t.Variant.hasAlpha() {
		if err := binary.Write(w, binary.LittleEndian, toUint16s(t.Alpha[:t.NUsedSlots])); err != nil {
			return n, fmt.Errorf("table: write alpha: %w", err)
		}
		n += int64(t.NUsedSlots) * 2
	}
	if t.Variant.hasGroupAlpha() {
		if err := binary.Write(w, binary.LittleEndian, toUint16s(t.GroupAlpha[:t.NUsedSlots])); err != nil {
			return n, fmt.Errorf("table: write group alpha: %w", err)
		}
		n += int64(t.NUsedSlots) * 2
	}
	if t.Variant.hasShape() {
		if err := binary.Write(w, binary.LittleEndian, toUint16s(t.Shape[:t.NUsedSlots])); err != nil {
			return n, fmt.Errorf("table: write shape: %w", err)
		}
		n += int64(t.NUsedSlots) * 2
	}
	switch t.Variant {
	case Output8:
		nb := t.NUsedSlots * t.NComps
		if _, err := w.Write(t.Color8[:nb]); err != nil {
			return n, fmt.Errorf("table: write color8: %w", err)
		}
		n += int64(nb)
	case Output16:
		nb := t.NUsedSlots * t.NComps
		if err := binary.Write(w, binary.LittleEndian, t.Color16[:nb]); err != nil {
			return n, fmt.Errorf("table: write color16: %w", err)
		}
		n += int64(nb) * 2
	default:
		if t.Variant.hasColor() {
			nb := t.NUsedSlots * t.NComps
			if err := binary.Write(w, binary.LittleEndian, toUint16s(t.Color[:nb])); err != nil {
				return n, fmt.Errorf("table: write color: %w", err)
			}
			n += int64(nb) * 2
		}
	}
	return n, nil
}

// ReadFrom reads back a table record written by WriteTo. The table's
// layout is recomputed from the header fields exactly as Init would;
// no pointer/offset state is persisted.
func (t *Table) ReadFrom(r io.Reader) (int64, error) {
	var n int64
	var hdr [4]uint32
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return n, fmt.Errorf("table: read header: %w", err)
	}
	n += 16
	variant := Variant(hdr[0])
	nComps := int(hdr[1])
	nSlots := int(hdr[2])

	t.Init(variant, nComps, nSlots)
	t.NUsedSlots = nSlots

	if variant.hasInfo() {
		for i := 0; i < nSlots; i++ {
			var words [4]uint32
			if err := binary.Read(r, binary.LittleEndian, &words); err != nil {
				return n, fmt.Errorf("table: read info[%d]: %w", i, err)
			}
			n += 16
			t.Info[i] = colorval.Info{
				Spot:            uint16(words[0]),
				ColorType:       uint8(words[1] >> 24),
				RenderingIntent: uint8(words[1] >> 16),
				BlackType:       uint8(words[1] >> 8),
				ReproModel:      uint8(words[1]),
				Flags:           uint16(words[2]),
				Label:           words[3],
			}
		}
	}
	if variant.hasAlpha() {
		buf := make([]uint16, nSlots)
		if err := binary.Read(r, binary.LittleEndian, buf); err != nil {
			return n, fmt.Errorf("table: read alpha: %w", err)
		}
		n += int64(nSlots) * 2
		fromUint16s(buf, t.Alpha)
	}
	if variant.hasGroupAlpha() {
		buf := make([]uint16, nSlots)
		if err := binary.Read(r, binary.LittleEndian, buf); err != nil {
			return n, fmt.Errorf("table: read group alpha: %w", err)
		}
		n += int64(nSlots) * 2
		fromUint16s(buf, t.GroupAlpha)
	}
	if variant.hasShape() {
		buf := make([]uint16, nSlots)
		if err := binary.Read(r, binary.LittleEndian, buf); err != nil {
			return n, fmt.Errorf("table: read shape: %w", err)
		}
		n += int64(nSlots) * 2
		fromUint16s(buf, t.Shape)
	}
	switch variant {
	case Output8:
		nb := nSlots * nComps
		if _, err := io.ReadFull(r, t.Color8[:nb]); err != nil {
			return n, fmt.Errorf("table: read color8: %w", err)
		}
		n += int64(nb)
	case Output16:
		nb := nSlots * nComps
		if err := binary.Read(r, binary.LittleEndian, t.Color16[:nb]); err != nil {
			return n, fmt.Errorf("table: read color16: %w", err)
		}
		n += int64(nb) * 2
	default:
		if variant.hasColor() {
			nb := nSlots * nComps
			buf := make([]uint16, nb)
			if err := binary.Read(r, binary.LittleEndian, buf); err != nil {
				return n, fmt.Errorf("table: read color: %w", err)
			}
			n += int64(nb) * 2
			fromUint16s(buf, t.Color)
		}
	}
	return n, nil
}

func toUint16s[T ~uint16](vs []T) []uint16 {
	out := make([]uint16, len(vs))
	for i, v := range vs {
		out[i] = uint16(v)
	}
	return out
}

func fromUint16s[T ~uint16](src []uint16, dst []T) {
	for i, v := range src {
		dst[i] = T(v)
	}
}
