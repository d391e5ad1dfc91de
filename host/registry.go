package host

import (
	"encoding/binary"
	"fmt"

	"github.com/hashicorp/go-memdb"
)

const instanceTable = "instance"

var registrySchema = &memdb.DBSchema{
	Tables: map[string]*memdb.TableSchema{
		instanceTable: {
			Name: instanceTable,
			Indexes: map[string]*memdb.IndexSchema{
				"id": {
					Name:    "id",
					Unique:  true,
					Indexer: idIndexer{},
				},
				"name": {
					Name:         "name",
					AllowMissing: true,
					Indexer:      &memdb.StringFieldIndex{Field: "Name"},
				},
			},
		},
	},
}

// record is the registry row for one instance. Name is empty when the
// guest publishes none.
type record struct {
	Instance *Instance
	Name     string
	ID       uint64
}

// idIndexer encodes ids big-endian so iteration follows id order.
type idIndexer struct{}

func (idIndexer) FromObject(obj any) (bool, []byte, error) {
	r, ok := obj.(*record)
	if !ok {
		return false, nil, fmt.Errorf("registry: unexpected object %T", obj)
	}
	return true, encodeID(r.ID), nil
}

func (idIndexer) FromArgs(args ...any) ([]byte, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("registry: expected one id, got %d", len(args))
	}
	id, ok := args[0].(uint64)
	if !ok {
		return nil, fmt.Errorf("registry: id must be uint64, got %T", args[0])
	}
	return encodeID(id), nil
}

func encodeID(id uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, id)
}

// Resolver finds instances by the name their module publishes.
type Resolver interface {
	Resolve(name string) (*Instance, bool)
}

// Registry indexes the live instances of a host by id and by name. It is
// safe for concurrent use.
type Registry struct {
	db *memdb.MemDB
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	db, err := memdb.NewMemDB(registrySchema)
	if err != nil {
		// The schema is static; it either validates or the package is broken.
		panic(err)
	}
	return &Registry{db: db}
}

// Insert adds inst. Ids are unique; names need not be.
func (r *Registry) Insert(inst *Instance) error {
	name, _ := inst.Name()

	txn := r.db.Txn(true)
	defer txn.Abort()

	if existing, err := txn.First(instanceTable, "id", inst.ID()); err != nil {
		return err
	} else if existing != nil {
		return fmt.Errorf("registry: instance %d already registered", inst.ID())
	}

	if err := txn.Insert(instanceTable, &record{Instance: inst, Name: name, ID: inst.ID()}); err != nil {
		return err
	}
	txn.Commit()
	return nil
}

// Get looks up an instance by id.
func (r *Registry) Get(id uint64) (*Instance, bool) {
	raw, err := r.db.Txn(false).First(instanceTable, "id", id)
	if err != nil || raw == nil {
		return nil, false
	}
	return raw.(*record).Instance, true
}

// Resolve implements Resolver. When several instances share a name, the one
// with the lowest id wins.
func (r *Registry) Resolve(name string) (*Instance, bool) {
	it, err := r.db.Txn(false).Get(instanceTable, "name", name)
	if err != nil {
		return nil, false
	}

	var best *record
	for raw := it.Next(); raw != nil; raw = it.Next() {
		rec := raw.(*record)
		if best == nil || rec.ID < best.ID {
			best = rec
		}
	}
	if best == nil {
		return nil, false
	}
	return best.Instance, true
}

// Remove deletes the instance with the given id and reports whether it was
// present.
func (r *Registry) Remove(id uint64) bool {
	txn := r.db.Txn(true)
	defer txn.Abort()

	n, err := txn.DeleteAll(instanceTable, "id", id)
	if err != nil || n == 0 {
		return false
	}
	txn.Commit()
	return true
}

// Len returns the number of registered instances.
func (r *Registry) Len() int {
	return len(r.IDs())
}

// IDs returns the registered ids in ascending order.
func (r *Registry) IDs() []uint64 {
	it, err := r.db.Txn(false).Get(instanceTable, "id")
	if err != nil {
		return nil
	}

	var ids []uint64
	for raw := it.Next(); raw != nil; raw = it.Next() {
		ids = append(ids, raw.(*record).ID)
	}
	return ids
}

// Instances returns the registered instances in id order.
func (r *Registry) Instances() []*Instance {
	it, err := r.db.Txn(false).Get(instanceTable, "id")
	if err != nil {
		return nil
	}

	var out []*Instance
	for raw := it.Next(); raw != nil; raw = it.Next() {
		out = append(out, raw.(*record).Instance)
	}
	return out
}
