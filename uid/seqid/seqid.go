package seqid

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

const (
	firstLetters = "AAA"
	firstCounter = 1
	maxCounter   = 999
)

// suffixPattern 前缀之后的部分：大写字母块紧跟三位数字，锚定在结尾
var suffixPattern = regexp.MustCompile(`([A-Z]+)([0-9]{3})$`)

// ID 形如 <prefix><letters><3 digits> 的顺序 ID
type ID struct {
	Prefix  string
	Letters string
	Counter int
}

// First 前缀下的第一个 ID：prefix + AAA001
func First(prefix string) ID {
	return ID{Prefix: prefix, Letters: firstLetters, Counter: firstCounter}
}

// Parse 解析 id，id 不以 prefix 开头或后缀不符合格式时返回 false
func Parse(prefix string, id string) (ID, bool) {
	if !strings.HasPrefix(id, prefix) {
		return ID{}, false
	}
	m := suffixPattern.FindStringSubmatch(id[len(prefix):])
	if m == nil {
		return ID{}, false
	}
	counter, err := strconv.Atoi(m[2])
	if err != nil {
		return ID{}, false
	}
	return ID{Prefix: prefix, Letters: m[1], Counter: counter}, true
}

// Next 计数器加一，超过 999 时回到 001 并递增字母块
func (id ID) Next() ID {
	if id.Counter >= maxCounter {
		return ID{Prefix: id.Prefix, Letters: IncrementLetters(id.Letters), Counter: firstCounter}
	}
	return ID{Prefix: id.Prefix, Letters: id.Letters, Counter: id.Counter + 1}
}

func (id ID) String() string {
	return fmt.Sprintf("%s%s%03d", id.Prefix, id.Letters, id.Counter)
}

// Less 先比较字母块（更长的更大），再比较计数器
func (id ID) Less(other ID) bool {
	if len(id.Letters) != len(other.Letters) {
		return len(id.Letters) < len(other.Letters)
	}
	if id.Letters != other.Letters {
		return id.Letters < other.Letters
	}
	return id.Counter < other.Counter
}

// IncrementLetters 按 26 进制递增大写字母块：AAZ -> ABA，ZZZ -> AAAA
func IncrementLetters(letters string) string {
	b := []byte(letters)
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] != 'Z' {
			b[i]++
			return string(b)
		}
		b[i] = 'A'
	}
	return "A" + string(b)
}
