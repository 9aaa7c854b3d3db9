package ident

import (
	"github.com/pkg/errors"
)

var ErrInvalidIdentifier = errors.New("invalid identifier")

// Identifier 校验通过的表名或列名，只包含 [A-Za-z0-9_]
// 字段不导出，只能通过 Validate 构造，保证拼进语句的名字都校验过
type Identifier struct {
	name string
}

// Validate 校验标识符，空串或包含 [A-Za-z0-9_] 以外的字符返回 ErrInvalidIdentifier
func Validate(name string) (Identifier, error) {
	if name == "" {
		return Identifier{}, errors.Wrap(ErrInvalidIdentifier, "empty identifier")
	}
	for i := 0; i < len(name); i++ {
		if !isIdentByte(name[i]) {
			return Identifier{}, errors.Wrapf(ErrInvalidIdentifier, "%q", name)
		}
	}
	return Identifier{name: name}, nil
}

func MustValidate(name string) Identifier {
	id, err := Validate(name)
	if err != nil {
		panic(err)
	}
	return id
}

// ValidateAll 按顺序校验，遇到第一个非法名字即返回
func ValidateAll(names []string) ([]Identifier, error) {
	ids := make([]Identifier, 0, len(names))
	for _, name := range names {
		id, err := Validate(name)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (i Identifier) String() string {
	return i.name
}

func (i Identifier) IsZero() bool {
	return i.name == ""
}

func isIdentByte(c byte) bool {
	return c == '_' ||
		(c >= 'a' && c <= 'z') ||
		(c >= 'A' && c <= 'Z') ||
		(c >= '0' && c <= '9')
}
