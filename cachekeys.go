package forum

import (
	"fmt"
	"slices"

	"github.com/rbaliyan/forum/store"
)

// Cache key layout. Every cached view has a key builder here and an entry in
// keySpace so that invalidation can enumerate it by exact key.
const (
	keyCategoriesPublic = "forums:categories:public"
	keyStats            = "forums:stats"
)

func categoriesKey(memberID int64) string {
	if memberID == 0 {
		return keyCategoriesPublic
	}
	return fmt.Sprintf("forums:categories:user%d", memberID)
}

func boardKey(boardID int64, page, limit int, memberID int64) string {
	if memberID == 0 {
		return fmt.Sprintf("forums:board:%d:p%d:l%d", boardID, page, limit)
	}
	return fmt.Sprintf("forums:board:%d:p%d:l%d:user%d", boardID, page, limit, memberID)
}

func topicKey(topicID int64, page, limit int, order store.SortOrder) string {
	return fmt.Sprintf("forums:topic:%d:p%d:l%d:%s", topicID, page, limit, order)
}

func latestKey(limit, offset int) string {
	return fmt.Sprintf("forums:messages:latest:limit%d:offset%d:all", limit, offset)
}

// keySpace bounds the cached views: the first cachedPages pages at one of the
// configured page sizes.
type keySpace struct {
	pageSizes   []int
	cachedPages int
}

// pageCached reports whether a page of a listing has an enumerable key.
func (k keySpace) pageCached(page, limit int) bool {
	return page >= 1 && page <= k.cachedPages && slices.Contains(k.pageSizes, limit)
}

// latestCached reports whether a latest-activity window has an enumerable key.
func (k keySpace) latestCached(limit, offset int) bool {
	if !slices.Contains(k.pageSizes, limit) || offset < 0 || offset%limit != 0 {
		return false
	}
	return offset/limit < k.cachedPages
}

func (k keySpace) boardPages(boardID, memberID int64) []string {
	keys := make([]string, 0, k.cachedPages*len(k.pageSizes))
	for page := 1; page <= k.cachedPages; page++ {
		for _, limit := range k.pageSizes {
			keys = append(keys, boardKey(boardID, page, limit, memberID))
		}
	}
	return keys
}

func (k keySpace) topicPages(topicID int64) []string {
	keys := make([]string, 0, 2*k.cachedPages*len(k.pageSizes))
	for page := 1; page <= k.cachedPages; page++ {
		for _, limit := range k.pageSizes {
			keys = append(keys,
				topicKey(topicID, page, limit, store.SortAsc),
				topicKey(topicID, page, limit, store.SortDesc))
		}
	}
	return keys
}

func (k keySpace) latest() []string {
	keys := make([]string, 0, k.cachedPages*len(k.pageSizes))
	for _, limit := range k.pageSizes {
		for page := 0; page < k.cachedPages; page++ {
			keys = append(keys, latestKey(limit, page*limit))
		}
	}
	return keys
}
