package apisnippetv1

import (
	"github.com/fulldump/box"
)

func BuildV1Snippets(v1 *box.R) *box.R {

	snippets := v1.Resource("/snippets").
		WithActions(
			box.Get(listSnippets),
			box.Post(createSnippet),
			box.Action(search),
			box.Action(count),
			box.Action(export),
			box.Action(watch),
			box.ActionPost(find),
			box.ActionPost(importSnippets).WithName("import"),
			box.ActionPost(clear),
		)

	v1.Resource("/snippets/{snippetId}").
		WithActions(
			box.Get(getSnippet),
			box.Put(updateSnippet),
			box.Patch(patchSnippet),
			box.Delete(deleteSnippet),
		)

	v1.Resource("/tags").
		WithActions(
			box.Get(listTags),
		)

	v1.Resource("/tags/{tagName}/snippets").
		WithActions(
			box.Get(listTagSnippets),
		)

	return snippets
}
