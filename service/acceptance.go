package service

import (
	"net/http"

	"github.com/fulldump/apitest"
	"github.com/fulldump/biff"
)

type JSON = map[string]interface{}

// Acceptance runs the whole snippet lifecycle against a running API. It is
// shared by the api acceptance test and by the documentation generator,
// which captures each request/response pair with Save.
func Acceptance(a *biff.A, apiRequest func(method, path string) *apitest.Request) {

	a.Alternative("List snippets - empty", func(a *biff.A) {
		resp := apiRequest("GET", "/snippets").Do()
		Save(resp, "List snippets - empty", ``)

		biff.AssertEqual(resp.StatusCode, http.StatusOK)
		biff.AssertEqualJson(resp.BodyJson(), []JSON{})
	})

	a.Alternative("Create snippet - invalid language", func(a *biff.A) {
		resp := apiRequest("POST", "/snippets").
			WithBodyJson(JSON{
				"title":    "Nope",
				"language": "cobol",
			}).Do()
		Save(resp, "Create snippet - invalid language", ``)

		biff.AssertEqual(resp.StatusCode, http.StatusBadRequest)
	})

	a.Alternative("Create snippet", func(a *biff.A) {
		resp := apiRequest("POST", "/snippets").
			WithBodyJson(JSON{
				"id":    "my-snippet",
				"title": "Debounce hook",
				"code":  "export const useDebounce = (value, delay) => value",
				"tags":  []string{"react", "hooks"},
			}).Do()
		Save(resp, "Create snippet", `
			The language defaults to 'ts' and the id is generated when
			the request does not bring one.
		`)

		biff.AssertEqual(resp.StatusCode, http.StatusCreated)
		body := resp.BodyJsonMap()
		biff.AssertEqual(body["id"], "my-snippet")
		biff.AssertEqual(body["language"], "ts")
		biff.AssertNotNil(body["createdAt"])

		a.Alternative("Retrieve snippet", func(a *biff.A) {
			resp := apiRequest("GET", "/snippets/my-snippet").Do()
			Save(resp, "Retrieve snippet", ``)

			biff.AssertEqual(resp.StatusCode, http.StatusOK)
			biff.AssertEqual(resp.BodyJsonMap()["title"], "Debounce hook")
		})

		a.Alternative("Retrieve snippet - not found", func(a *biff.A) {
			resp := apiRequest("GET", "/snippets/nope").Do()
			Save(resp, "Retrieve snippet - not found", ``)

			biff.AssertEqual(resp.StatusCode, http.StatusNotFound)
		})

		a.Alternative("Update snippet", func(a *biff.A) {
			resp := apiRequest("PUT", "/snippets/my-snippet").
				WithBodyJson(JSON{
					"title": "Debounce hook (v2)",
					"code":  "export const useDebounce = (value, delay) => value",
					"tags":  []string{"react"},
				}).Do()
			Save(resp, "Update snippet", `
				The whole snippet is replaced, except for 'id' and
				'createdAt', which are preserved.
			`)

			biff.AssertEqual(resp.StatusCode, http.StatusOK)
			body := resp.BodyJsonMap()
			biff.AssertEqual(body["title"], "Debounce hook (v2)")
			biff.AssertEqualJson(body["tags"], []string{"react"})
		})

		a.Alternative("Patch snippet", func(a *biff.A) {
			resp := apiRequest("PATCH", "/snippets/my-snippet").
				WithBodyJson(JSON{
					"title": "Throttle hook",
				}).Do()
			Save(resp, "Patch snippet", `
				Only the fields present in the request are modified.
			`)

			biff.AssertEqual(resp.StatusCode, http.StatusOK)
			body := resp.BodyJsonMap()
			biff.AssertEqual(body["title"], "Throttle hook")
			biff.AssertEqual(body["language"], "ts")

			a.Alternative("Patch snippet - immutable field", func(a *biff.A) {
				resp := apiRequest("PATCH", "/snippets/my-snippet").
					WithBodyJson(JSON{
						"id": "other-id",
					}).Do()
				Save(resp, "Patch snippet - immutable field", ``)

				biff.AssertEqual(resp.StatusCode, http.StatusBadRequest)
			})
		})

		a.Alternative("Search snippets", func(a *biff.A) {
			resp := apiRequest("GET", "/snippets:search").
				WithQuery("q", "DEBOUNCE").Do()
			Save(resp, "Search snippets", `
				Case insensitive substring match over title, code and
				tags. A blank query returns everything.
			`)

			biff.AssertEqual(resp.StatusCode, http.StatusOK)
			items := resp.BodyJson().([]interface{})
			biff.AssertEqual(len(items), 1)
		})

		a.Alternative("Search snippets - no results", func(a *biff.A) {
			resp := apiRequest("GET", "/snippets:search").
				WithQuery("q", "zzz").Do()
			Save(resp, "Search snippets - no results", ``)

			biff.AssertEqual(resp.StatusCode, http.StatusOK)
			biff.AssertEqualJson(resp.BodyJson(), []JSON{})
		})

		a.Alternative("Find snippets", func(a *biff.A) {
			resp := apiRequest("POST", "/snippets:find").
				WithBodyJson(JSON{
					"language": "ts",
				}).Do()
			Save(resp, "Find snippets", `
				The body is a filter. Each field must match for a
				snippet to be returned.
			`)

			biff.AssertEqual(resp.StatusCode, http.StatusOK)
			items := resp.BodyJson().([]interface{})
			biff.AssertEqual(len(items), 1)
		})

		a.Alternative("Count snippets", func(a *biff.A) {
			resp := apiRequest("GET", "/snippets:count").Do()
			Save(resp, "Count snippets", ``)

			biff.AssertEqual(resp.StatusCode, http.StatusOK)
			biff.AssertEqualJson(resp.BodyJsonMap()["count"], 1)
		})

		a.Alternative("List tags", func(a *biff.A) {
			resp := apiRequest("GET", "/tags").Do()
			Save(resp, "List tags", ``)

			biff.AssertEqual(resp.StatusCode, http.StatusOK)
			biff.AssertEqualJson(resp.BodyJson(), []string{"hooks", "react"})
		})

		a.Alternative("List snippets by tag", func(a *biff.A) {
			resp := apiRequest("GET", "/tags/react/snippets").Do()
			Save(resp, "List snippets by tag", ``)

			biff.AssertEqual(resp.StatusCode, http.StatusOK)
			items := resp.BodyJson().([]interface{})
			biff.AssertEqual(len(items), 1)
		})

		a.Alternative("Export snippets", func(a *biff.A) {
			resp := apiRequest("GET", "/snippets:export").Do()
			Save(resp, "Export snippets", `
				The export is a portable envelope, ready to be imported
				into another instance.
			`)

			biff.AssertEqual(resp.StatusCode, http.StatusOK)
			biff.AssertEqual(resp.Header.Get("Content-Disposition"), `attachment; filename="snippets.json"`)
			body := resp.BodyJsonMap()
			biff.AssertEqualJson(body["v"], 1)
			biff.AssertEqual(len(body["items"].([]interface{})), 1)

			exported := resp.BodyString()

			a.Alternative("Import snippets", func(a *biff.A) {
				clear := apiRequest("POST", "/snippets:clear").Do()
				biff.AssertEqual(clear.StatusCode, http.StatusNoContent)

				resp := apiRequest("POST", "/snippets:import").
					WithBodyString(exported).Do()
				Save(resp, "Import snippets", `
					Accepts an export envelope or a bare array of
					snippets. Existing ids are overwritten.
				`)

				biff.AssertEqual(resp.StatusCode, http.StatusNoContent)

				count := apiRequest("GET", "/snippets:count").Do()
				biff.AssertEqualJson(count.BodyJsonMap()["count"], 1)
			})
		})

		a.Alternative("Import snippets - malformed", func(a *biff.A) {
			resp := apiRequest("POST", "/snippets:import").
				WithBodyString(`{"v":1,"items":"nope"}`).Do()
			Save(resp, "Import snippets - malformed", ``)

			biff.AssertEqual(resp.StatusCode, http.StatusBadRequest)

			count := apiRequest("GET", "/snippets:count").Do()
			biff.AssertEqualJson(count.BodyJsonMap()["count"], 1)
		})

		a.Alternative("Delete snippet", func(a *biff.A) {
			resp := apiRequest("DELETE", "/snippets/my-snippet").Do()
			Save(resp, "Delete snippet", ``)

			biff.AssertEqual(resp.StatusCode, http.StatusNoContent)

			a.Alternative("Retrieve deleted snippet", func(a *biff.A) {
				resp := apiRequest("GET", "/snippets/my-snippet").Do()

				biff.AssertEqual(resp.StatusCode, http.StatusNotFound)
			})
		})

		a.Alternative("Clear snippets", func(a *biff.A) {
			resp := apiRequest("POST", "/snippets:clear").Do()
			Save(resp, "Clear snippets", ``)

			biff.AssertEqual(resp.StatusCode, http.StatusNoContent)

			list := apiRequest("GET", "/snippets").Do()
			biff.AssertEqualJson(list.BodyJson(), []JSON{})
		})
	})
}
