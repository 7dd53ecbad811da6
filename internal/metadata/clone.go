package metadata

import (
	"fmt"

	"github.com/distr1/mxf/internal/klv"
	"github.com/distr1/mxf/internal/schema"
)

// CloneSet deep-copies src into dst, recursively cloning the sets it
// strongly references. Weak references are preserved as InstanceUID
// values only. The clone keeps the source InstanceUIDs, so weak
// references into the cloned subtree still resolve in dst.
func CloneSet(src *Set, dst *HeaderMetadata) (*Set, error) {
	if existing, ok := dst.FindSet(src.InstanceUID()); ok {
		return existing, nil
	}
	clone, err := dst.addSet(&src.Key, src.InstanceUID())
	if err != nil {
		return nil, err
	}
	for _, k := range src.order {
		k := k
		if k == schema.ItemInstanceUID {
			continue
		}
		item := src.items[k]
		clone.setRaw(&k, item.Value)

		def, err := src.hm.model.FindItemDef(&src.Key, &k)
		if err != nil {
			continue // unknown items carry over as raw bytes
		}
		switch def.Type {
		case schema.TypeStrongRef:
			uid, err := src.GetStrongRefUID(&k)
			if err != nil {
				return nil, err
			}
			if err := cloneTarget(src.hm, dst, uid); err != nil {
				return nil, fmt.Errorf("cloning %s: %w", def.Name, err)
			}
		case schema.TypeStrongRefArray, schema.TypeStrongRefBatch:
			uids, err := src.GetUUIDArrayItem(&k)
			if err != nil {
				return nil, err
			}
			for _, uid := range uids {
				if err := cloneTarget(src.hm, dst, uid); err != nil {
					return nil, fmt.Errorf("cloning %s: %w", def.Name, err)
				}
			}
		}
	}
	return clone, nil
}

func cloneTarget(src *HeaderMetadata, dst *HeaderMetadata, uid klv.UUID) error {
	target, ok := src.FindSet(uid)
	if !ok {
		return fmt.Errorf("%w: %s", ErrDanglingStrongRef, uid)
	}
	_, err := CloneSet(target, dst)
	return err
}
