package pool

import (
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"
)

// Object pools for the mod-log renderer, which builds one embed per guild per flush

var (
	EmbedFieldPool = sync.Pool{
		New: func() interface{} {
			return make([]*discordgo.MessageEmbedField, 0, 8)
		},
	}

	StringBuilderPool = sync.Pool{
		New: func() interface{} {
			return new(strings.Builder)
		},
	}
)

// GetEmbedFields retrieves an embed field slice from the pool
func GetEmbedFields() []*discordgo.MessageEmbedField {
	fields := EmbedFieldPool.Get().([]*discordgo.MessageEmbedField)
	return fields[:0]
}

// PutEmbedFields returns embed fields to the pool
func PutEmbedFields(fields []*discordgo.MessageEmbedField) {
	// Clear references to prevent memory leaks
	for i := range fields {
		fields[i] = nil
	}
	EmbedFieldPool.Put(fields[:0])
}

func GetStringBuilder() *strings.Builder {
	sb := StringBuilderPool.Get().(*strings.Builder)
	sb.Reset()
	return sb
}

func PutStringBuilder(sb *strings.Builder) {
	if sb.Cap() > 64<<10 {
		return
	}
	StringBuilderPool.Put(sb)
}
