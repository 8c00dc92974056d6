package worker

import "github.com/storeforge/storeforge-backend/internal/values"

// AssemblerAdapter bridges the values assembler to the engine's interface.
type AssemblerAdapter struct {
	Assembler *values.Assembler
}

func (a AssemblerAdapter) Assemble(storeID, storeName, domain, namespace string) (*ValuesResult, error) {
	res, err := a.Assembler.Assemble(storeID, storeName, domain, namespace)
	if err != nil {
		return nil, err
	}
	return &ValuesResult{Path: res.Path, AdminPassword: res.AdminPassword}, nil
}
