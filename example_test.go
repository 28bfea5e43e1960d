package sortdata_test

import (
	"encoding/binary"
	"fmt"
	"log"
	"os"

	"github.com/google/uuid"

	"github.com/jpl-au/sortdata"
)

func Example() {
	dir, _ := os.MkdirTemp("", "sortdata-example")
	defer os.RemoveAll(dir)

	instance := uuid.MustParse("11111111-2222-3333-4444-555555555555")

	// The snapshot pipeline produces a read view; here one space with
	// a single secondary key that dumps two records, each embedding
	// the save-time address of its tuple.
	payload := make([]byte, 16)
	binary.NativeEndian.PutUint64(payload[0:], 0x1000)
	binary.NativeEndian.PutUint64(payload[8:], 0x1008)
	rv := &sortdata.ReadView{
		Signature: 7,
		Spaces: []*sortdata.SpaceReadView{{
			ID: 512,
			Indexes: []*sortdata.IndexReadView{
				{Engine: sortdata.MemoryEngine},
				{
					Engine: sortdata.MemoryEngine,
					DumpSortData: func(w *sortdata.Writer, limit int64) (bool, error) {
						return false, w.Put(payload, 8, 2)
					},
				},
			},
		}},
	}

	// Save: primary key first, then each secondary key.
	w := sortdata.NewWriter(rv, dir, instance, sortdata.Config{})
	if err := w.Open(); err != nil {
		log.Fatal(err)
	}
	w.BeginPK(512)
	w.PutPKTuple(0x1000)
	w.PutPKTuple(0x1008)
	w.CommitPK()
	w.DumpIndex(512, 1, rv.Spaces[0].Indexes[1].DumpSortData, 1<<20)
	if err := w.Close(); err != nil {
		log.Fatal(err)
	}
	if err := w.Materialize(); err != nil {
		log.Fatal(err)
	}

	// Load: the snapshot read re-allocates every tuple; the reader
	// translates the embedded save-time addresses.
	r := sortdata.NewReader(dir, 7, instance, sortdata.Config{})
	if r == nil {
		log.Fatal("no usable sort data")
	}
	defer r.Close()

	r.SpaceInit(512)
	r.AddPKTuple(0xA0) // new address of the tuple saved at 0x1000
	r.AddPKTuple(0xB0) // new address of the tuple saved at 0x1008

	if included, _ := r.Seek(512, 1); included {
		buf := make([]byte, r.Size())
		r.Read(buf)
		for i := 0; i < len(buf); i += 8 {
			old := sortdata.TuplePtr(binary.NativeEndian.Uint64(buf[i:]))
			ptr, _ := r.Resolve(old)
			fmt.Printf("%#x -> %#x\n", uint64(old), uint64(ptr))
		}
	}
	// Output: 0x1000 -> 0xa0
	// 0x1008 -> 0xb0
}
