package block

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/tilepress/backdrop/resource"
	"github.com/tilepress/backdrop/table"
)

// SpillFile is the random-access surface the spiller needs; an
// *os.File satisfies it directly.
type SpillFile interface {
	io.ReaderAt
	io.WriterAt
}

// Spiller bump-allocates record offsets in one backing file. Its mutex
// covers only the offset assignment; the WriteAt/ReadAt calls of Purge
// and Load run outside it.
type Spiller struct {
	mu   sync.Mutex
	f    SpillFile
	next int64
}

// NewSpiller wraps f as a bump-allocated spill stream.
func NewSpiller(f SpillFile) *Spiller {
	return &Spiller{f: f}
}

func (s *Spiller) alloc(n int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	off := s.next
	s.next += n
	return off
}

// Purge writes a block's header, lines and tables to the spill file
// and releases its in-memory storage and pooled resource, leaving
// Storage == Disk. The block must not be purged while a Reader has it
// temporarily unlinked from the purge list (enforced by the caller).
func (b *Block) Purge(s *Spiller, pool *resource.Pool) error {
	if b.Storage != Memory {
		return fmt.Errorf("block: Purge requires Storage == Memory, got %v", b.Storage)
	}
	var buf bytes.Buffer
	if err := b.serialize(&buf); err != nil {
		return fmt.Errorf("%w: purge serialize: %v", ErrIO, err)
	}
	data := buf.Bytes()
	off := s.alloc(int64(len(data)))
	if _, err := s.f.WriteAt(data, off); err != nil {
		return fmt.Errorf("%w: purge write: %v", ErrIO, err)
	}
	b.Disk = &Location{Offset: off, Length: int64(len(data))}
	b.Rows = nil
	b.Tables = nil
	if b.res != nil {
		pool.Put(b.res)
		b.res = nil
	}
	b.Storage = Disk
	b.Flags.Purgeable = false
	return nil
}

// Load reattaches a resource from pool and reads a purged block's data
// back from the spill file, using the byte length Purge recorded
// alongside the block's disk location.
func (b *Block) Load(ctx context.Context, s *Spiller, pool *resource.Pool, key resource.Key) error {
	if b.Storage != Disk || b.Disk == nil {
		return fmt.Errorf("block: Load requires Storage == Disk")
	}
	res, err := pool.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("block: load acquire resource: %w", err)
	}
	buf := make([]byte, b.Disk.Length)
	if _, err := s.f.ReadAt(buf, b.Disk.Offset); err != nil {
		pool.Put(res)
		return fmt.Errorf("%w: load read: %v", ErrIO, err)
	}
	if err := b.deserialize(bytes.NewReader(buf)); err != nil {
		pool.Put(res)
		return fmt.Errorf("%w: load deserialize: %v", ErrIO, err)
	}
	b.res = res
	b.Storage = Memory
	return nil
}

func flagsToWord(f Flags) int32 {
	var w int32
	if f.Complete {
		w |= 1
	}
	if f.Touched {
		w |= 2
	}
	return w
}

func flagsFromWord(w int32) Flags {
	return Flags{Complete: w&1 != 0, Touched: w&2 != 0}
}

func (b *Block) serialize(w io.Writer) error {
	hdr := [6]int32{int32(b.Width), int32(b.Height), int32(b.Variant), int32(b.NComps), int32(len(b.Tables)), flagsToWord(b.Flags)}
	if err := binary.Write(w, binary.LittleEndian, hdr); err != nil {
		return err
	}
	for _, r := range b.Rows {
		if err := binary.Write(w, binary.LittleEndian, int8(r.Kind)); err != nil {
			return err
		}
		if r.Kind == RowRepeat {
			continue
		}
		if err := binary.Write(w, binary.LittleEndian, int32(r.Table)); err != nil {
			return err
		}
		switch r.Kind {
		case RowRLE:
			if err := binary.Write(w, binary.LittleEndian, int32(len(r.Runs))); err != nil {
				return err
			}
			for _, run := range r.Runs {
				if err := binary.Write(w, binary.LittleEndian, int32(run.End)); err != nil {
					return err
				}
				if err := binary.Write(w, binary.LittleEndian, run.Slot); err != nil {
					return err
				}
			}
		case RowMap:
			if _, err := w.Write(r.Map); err != nil {
				return err
			}
		}
	}
	for _, t := range b.Tables {
		if _, err := t.WriteTo(w); err != nil {
			return err
		}
	}
	return nil
}

func (b *Block) deserialize(r io.Reader) error {
	var hdr [6]int32
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return err
	}
	b.Width, b.Height = int(hdr[0]), int(hdr[1])
	b.Variant, b.NComps = table.Variant(hdr[2]), int(hdr[3])
	nTables := int(hdr[4])
	b.Flags = flagsFromWord(hdr[5])

	b.Rows = make([]Row, b.Height)
	for y := range b.Rows {
		var kind int8
		if err := binary.Read(r, binary.LittleEndian, &kind); err != nil {
			return err
		}
		row := Row{Kind: RowKind(kind)}
		if row.Kind != RowRepeat {
			var t int32
			if err := binary.Read(r, binary.LittleEndian, &t); err != nil {
				return err
			}
			row.Table = int(t)
			switch row.Kind {
			case RowRLE:
				var n int32
				if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
					return err
				}
				row.Runs = make([]RunEntry, n)
				for i := range row.Runs {
					var end int32
					if err := binary.Read(r, binary.LittleEndian, &end); err != nil {
						return err
					}
					var slot uint8
					if err := binary.Read(r, binary.LittleEndian, &slot); err != nil {
						return err
					}
					row.Runs[i] = RunEntry{End: int(end), Slot: slot}
				}
			case RowMap:
				row.Map = make([]uint8, b.Width)
				if _, err := io.ReadFull(r, row.Map); err != nil {
					return err
				}
			}
		}
		b.Rows[y] = row
	}

	b.Tables = make([]*table.Table, nTables)
	for i := range b.Tables {
		b.Tables[i] = &table.Table{}
		if _, err := b.Tables[i].ReadFrom(r); err != nil {
			return err
		}
	}
	return nil
}
